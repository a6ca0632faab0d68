package domain

// Pairing links two participant feeds so each side can show the other.
type Pairing struct {
	ParticipantA ChannelID `json:"participantA"`
	ParticipantB ChannelID `json:"participantB"`
}

func (p Pairing) Involves(ch ChannelID) bool {
	return p.ParticipantA == ch || p.ParticipantB == ch
}

// Partner returns the other side of the pair for ch.
func (p Pairing) Partner(ch ChannelID) (ChannelID, bool) {
	switch ch {
	case p.ParticipantA:
		return p.ParticipantB, true
	case p.ParticipantB:
		return p.ParticipantA, true
	}
	return "", false
}
