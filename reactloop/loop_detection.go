package reactloop

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// callSignature computes a deterministic signature for a decoded call
// (name + hash of the sorted argument pairs).
func callSignature(name string, arguments map[string]string) string {
	keys := make([]string, 0, len(arguments))
	for k := range arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('\x00')
		sb.WriteString(arguments[k])
		sb.WriteByte('\x00')
	}
	h := sha256.Sum256([]byte(sb.String()))
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// DetectLoop checks if the last windowSize call signatures follow a
// repeating pattern of length 1, 2, or 3.
func DetectLoop(signatures []string, windowSize int) bool {
	if len(signatures) < windowSize {
		return false
	}
	sigs := signatures[len(signatures)-windowSize:]

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
