package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Word lists for readable initial passwords
var adjectives = []string{
	"amber", "bright", "calm", "gentle", "golden", "quiet", "steady", "sunny",
	"brisk", "clear", "cozy", "early", "fresh", "kindly", "lucky", "mellow",
	"noble", "patient", "quick", "rosy", "silver", "sturdy", "tidy", "warm",
}

var nouns = []string{
	"harbor", "meadow", "garden", "willow", "lantern", "orchard", "river", "maple",
	"cedar", "porch", "teapot", "compass", "sparrow", "harvest", "pebble", "quilt",
	"beacon", "valley", "heron", "kettle", "rowan", "thistle", "acorn", "birch",
}

// GeneratePassphrase returns a random "adjective-noun-NNNN" passphrase for
// accounts created without a password
func GeneratePassphrase() (string, error) {
	adjective, err := randomElement(adjectives)
	if err != nil {
		return "", err
	}
	noun, err := randomElement(nouns)
	if err != nil {
		return "", err
	}
	num, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", adjective, noun, num.Int64()), nil
}

// randomElement picks a random element from a string slice
func randomElement(slice []string) (string, error) {
	if len(slice) == 0 {
		return "", nil
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slice))))
	if err != nil {
		return "", err
	}

	return slice[num.Int64()], nil
}
