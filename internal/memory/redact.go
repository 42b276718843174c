package memory

import (
	"regexp"
	"strings"
)

var (
	reAnthropicKey = regexp.MustCompile(`\bsk-[A-Za-z0-9-]{10,}\b`)
	reAWSKey       = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	reBearerToken  = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._-]{16,}\b`)
)

// Redact masks secret-shaped tokens and strips private key blocks. The
// second return reports whether anything changed.
func Redact(text string) (string, bool) {
	original := text
	out := text

	out = reAnthropicKey.ReplaceAllStringFunc(out, redactToken)
	out = reAWSKey.ReplaceAllStringFunc(out, redactToken)
	out = reBearerToken.ReplaceAllStringFunc(out, redactToken)

	if strings.Contains(out, "-----BEGIN") {
		out = redactPEMBlocks(out)
	}

	return out, out != original
}

func redactToken(token string) string {
	t := strings.TrimSpace(token)
	if len(t) <= 8 {
		return "***"
	}
	prefix := t[:4]
	suffix := t[len(t)-4:]
	return prefix + "***" + suffix
}

func redactPEMBlocks(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		if strings.HasPrefix(line, "-----BEGIN") {
			inBlock = true
			out = append(out, "-----BEGIN [REDACTED]-----")
			continue
		}
		if strings.HasPrefix(line, "-----END") {
			inBlock = false
			out = append(out, "-----END [REDACTED]-----")
			continue
		}
		if inBlock {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
