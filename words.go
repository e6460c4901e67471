package kenmon

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Word lists for OTP signatures. The signature is a human-readable phrase
// shown both in the email and in the verification UI so the user can
// visually confirm the two belong together. It is not an authentication
// factor and is never checked server-side.
var (
	signatureAdverbs = []string{
		"Quickly", "Slowly", "Boldly", "Calmly", "Gladly",
		"Kindly", "Softly", "Bravely", "Neatly", "Wisely",
		"Gently", "Loudly", "Proudly", "Swiftly", "Warmly",
	}
	signatureAdjectives = []string{
		"Happy", "Clever", "Bright", "Quiet", "Fuzzy",
		"Merry", "Sunny", "Brave", "Witty", "Jolly",
		"Eager", "Lively", "Mellow", "Plucky", "Zesty",
	}
	signatureAnimals = []string{
		"Elephant", "Penguin", "Dolphin", "Giraffe", "Octopus",
		"Raccoon", "Hedgehog", "Flamingo", "Walrus", "Gazelle",
		"Toucan", "Wombat", "Narwhal", "Lemur", "Otter",
	}
)

// GenerateOTPSignature generates a three-word phrase like
// "Quickly Happy Elephant" from the fixed word lists.
func GenerateOTPSignature() (string, error) {
	words := make([]string, 0, 3)
	for _, list := range [][]string{signatureAdverbs, signatureAdjectives, signatureAnimals} {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
		if err != nil {
			return "", fmt.Errorf("failed to generate signature: %w", err)
		}
		words = append(words, list[n.Int64()])
	}
	return strings.Join(words, " "), nil
}
