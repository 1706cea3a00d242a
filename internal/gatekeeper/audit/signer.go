package audit

import (
	"strconv"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
)

// Signer computes tamper-evidence MACs over the canonical event fields.
type Signer struct {
	key []byte
}

// NewSigner returns nil for an empty key; a nil Signer leaves events unsigned.
func NewSigner(key []byte) *Signer {
	if len(key) == 0 {
		return nil
	}
	return &Signer{key: append([]byte(nil), key...)}
}

// canonical joins every stored field except the signature with the ASCII
// unit separator. Timestamps are reduced to the stored millisecond precision.
func canonical(e domain.AuditEvent) []byte {
	return []byte(strings.Join([]string{
		e.ID,
		string(e.Type),
		e.Principal,
		e.Description,
		e.Details,
		strconv.FormatInt(e.Timestamp.UnixMilli(), 10),
		e.IPAddress,
		e.UserAgent,
		e.Source,
		string(e.Outcome),
	}, "\x1f"))
}

func (s *Signer) Sign(e domain.AuditEvent) string {
	if s == nil {
		return ""
	}
	return cryptox.MAC(s.key, canonical(e))
}

// Verify reports whether e.Signature matches its fields.
func (s *Signer) Verify(e domain.AuditEvent) bool {
	if s == nil || e.Signature == "" {
		return false
	}
	return cryptox.VerifyMAC(s.key, canonical(e), e.Signature)
}
