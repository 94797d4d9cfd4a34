package services

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 6
	maxInviteAttempts  = 10
)

// CodeGenerator returns a candidate invite code.
type CodeGenerator func() (string, error)

// RandomInviteCode draws six upper-case alphanumerics.
func RandomInviteCode() (string, error) {
	var sb strings.Builder
	sb.Grow(inviteCodeLength)
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := 0; i < inviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeInviteCode upper-cases and trims user input.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
