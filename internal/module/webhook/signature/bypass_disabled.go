//go:build !webhooktest

package signature

const bypassAvailable = false
