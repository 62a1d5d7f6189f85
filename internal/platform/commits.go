package platform

import (
	"strings"
)

// CommitFooter marks commits written by Aether.
const CommitFooter = "Powered-by: Aether"

// AppendFooter appends the Aether footer to an arbitrary message if not present.
func AppendFooter(msg string) string {
	if strings.Contains(msg, CommitFooter) {
		return msg
	}

	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	if !strings.HasSuffix(msg, "\n\n") {
		msg += "\n"
	}

	return msg + CommitFooter
}
