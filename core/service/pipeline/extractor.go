package pipeline

import (
	"encoding/base64"
	"strings"

	"mailliam_server/core/domain"
)

// ExtractPlainText walks the body tree depth-first, left to right, and
// returns the first decoded text/plain leaf. The DFS order decides which
// part wins when several plain-text leaves exist. Returns false when no
// plain-text leaf exists anywhere in the tree.
func ExtractPlainText(node *domain.BodyNode) (string, bool) {
	if node == nil {
		return "", false
	}

	if node.MIMEType == "text/plain" && node.Data != "" {
		return decodeBase64Text(node.Data), true
	}

	for _, part := range node.Parts {
		if text, ok := ExtractPlainText(part); ok {
			return text, true
		}
	}

	return "", false
}

// decodeBase64Text decodes a base64url payload best-effort. Malformed input
// degrades to whatever prefix decoded cleanly, and invalid UTF-8 sequences
// are replaced, never raised.
func decodeBase64Text(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail omits padding on some payloads; retry without it before
		// settling for the partial decode.
		if raw, rawErr := base64.RawURLEncoding.DecodeString(data); rawErr == nil {
			decoded = raw
		}
	}
	return strings.ToValidUTF8(string(decoded), "�")
}
