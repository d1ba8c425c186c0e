// Package webhook verifies inbound provider webhooks.
//
// Three independent layers, applied in order:
//  1. IP/CIDR allow-list - hard failure
//  2. HMAC-SHA256 signature over the raw body - hard failure
//  3. Replay protection (timestamp freshness + duplicate suppression)
//
// A missing timestamp degrades to a logged warning, since many
// legitimate provider payloads omit it. Signature and IP failures
// never degrade.
package webhook

import "errors"

var (
	ErrIPNotAllowed     = errors.New("webhook: source ip not allowed")
	ErrBadSignature     = errors.New("webhook: signature mismatch")
	ErrMissingSignature = errors.New("webhook: signature missing")
)
