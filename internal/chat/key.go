package chat

import (
	"fmt"
	"strings"

	"peer-chat-app/backend/pkg/errors"
)

// KeySeparator joins the two sorted participant ids inside a ConversationKey.
// Ids containing it are rejected, which is what keeps the key injective:
// no two distinct unordered pairs can produce the same key.
const KeySeparator = ":"

// ResolveKey derives the canonical conversation key for a pair of
// participants. It is commutative: ResolveKey(a, b) == ResolveKey(b, a).
// It is pure and stable across restarts.
func ResolveKey(a, b ParticipantID) (ConversationKey, error) {
	if err := validateParticipant(a); err != nil {
		return "", err
	}
	if err := validateParticipant(b); err != nil {
		return "", err
	}
	if a == b {
		return "", errors.NewInvalidParticipantPairError("participants must be distinct")
	}

	lo, hi := string(a), string(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	return ConversationKey(lo + KeySeparator + hi), nil
}

// Participants splits a conversation key back into its two participant ids.
func (k ConversationKey) Participants() (ParticipantID, ParticipantID, bool) {
	lo, hi, ok := strings.Cut(string(k), KeySeparator)
	if !ok || lo == "" || hi == "" {
		return "", "", false
	}
	return ParticipantID(lo), ParticipantID(hi), true
}

// Includes reports whether the participant is one of the conversation's pair.
func (k ConversationKey) Includes(p ParticipantID) bool {
	lo, hi, ok := k.Participants()
	return ok && (p == lo || p == hi)
}

func validateParticipant(p ParticipantID) error {
	if p == "" {
		return errors.NewInvalidParticipantPairError("participant id must not be empty")
	}
	if strings.Contains(string(p), KeySeparator) {
		return errors.NewInvalidParticipantPairError(
			fmt.Sprintf("participant id must not contain %q", KeySeparator))
	}
	return nil
}
