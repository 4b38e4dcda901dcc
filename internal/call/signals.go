package call

import "github.com/campushub/realtime/internal/proto"

// Envelope constructors for the outbound signaling messages.

func offerMsg(selfID, peerID string, kind Kind, callerName string, offer []byte) *proto.CallOffer {
	return &proto.CallOffer{
		SenderID:   selfID,
		ReceiverID: peerID,
		CallType:   string(kind),
		CallerName: callerName,
		Offer:      offer,
	}
}

func answerMsg(selfID, peerID string, answer []byte) *proto.CallAnswer {
	return &proto.CallAnswer{SenderID: selfID, ReceiverID: peerID, Answer: answer}
}

func rejectMsg(selfID, peerID string) *proto.CallReject {
	return &proto.CallReject{SenderID: selfID, ReceiverID: peerID}
}

func endMsg(selfID, peerID string) *proto.CallEnd {
	return &proto.CallEnd{SenderID: selfID, ReceiverID: peerID}
}

func candidateMsg(selfID, peerID string, cand []byte) *proto.ICECandidate {
	return &proto.ICECandidate{SenderID: selfID, ReceiverID: peerID, Candidate: cand}
}
