package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	otpAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultOTPLength = 6
)

func generateOTP(length int) (string, error) {
	if length <= 0 {
		length = defaultOTPLength
	}

	limit := big.NewInt(int64(len(otpAlphabet)))
	code := make([]byte, length)

	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate otp: %w", err)
		}

		code[i] = otpAlphabet[n.Int64()]
	}

	return string(code), nil
}
