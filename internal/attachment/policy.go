// Package attachment validates, uploads and downloads message attachments.
package attachment

import (
	"fmt"
	"strings"
)

// DefaultMaxBytes is the largest attachment the admin API accepts.
const DefaultMaxBytes = 10 << 20

// Reason classifies why a file was refused.
type Reason string

const (
	TooLarge       Reason = "too_large"
	TypeNotAllowed Reason = "type_not_allowed"
	Unreadable     Reason = "unreadable"
)

// Rejection reports one refused file. Rejections are per file and never abort
// the rest of a selection.
type Rejection struct {
	File   string
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.File, r.Detail)
}

// Policy is the size and type constraint applied before any upload.
type Policy struct {
	MaxBytes int64
	// Allowed holds exact MIME types or "major/*" wildcards.
	Allowed []string
}

// DefaultPolicy returns the observed production constraints: 10 MiB, PDF and images.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes: DefaultMaxBytes,
		Allowed:  []string{"application/pdf", "image/*"},
	}
}

// Validate checks f against the policy. It performs no I/O and returns nil or a
// *Rejection.
func (p Policy) Validate(f File) error {
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return &Rejection{
			File:   f.Name,
			Reason: TooLarge,
			Detail: fmt.Sprintf("%s exceeds the %s limit", humanSize(f.Size), humanSize(p.MaxBytes)),
		}
	}
	if !p.allows(f.MimeType) {
		return &Rejection{
			File:   f.Name,
			Reason: TypeNotAllowed,
			Detail: fmt.Sprintf("type %q is not allowed (accepted: %s)", f.MimeType, strings.Join(p.Allowed, ", ")),
		}
	}
	return nil
}

// Screen splits a selection into files that may be queued and per-file rejections.
// Order of accepted files is preserved.
func (p Policy) Screen(files []File) ([]File, []*Rejection) {
	var accepted []File
	var rejected []*Rejection
	for _, f := range files {
		if err := p.Validate(f); err != nil {
			rejected = append(rejected, err.(*Rejection))
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

func (p Policy) allows(mimeType string) bool {
	mt := normalizeType(mimeType)
	if mt == "" {
		return false
	}
	for _, a := range p.Allowed {
		a = normalizeType(a)
		if prefix, ok := strings.CutSuffix(a, "/*"); ok {
			if strings.HasPrefix(mt, prefix+"/") {
				return true
			}
			continue
		}
		if mt == a {
			return true
		}
	}
	return false
}

func normalizeType(mt string) string {
	mt, _, _ = strings.Cut(mt, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
