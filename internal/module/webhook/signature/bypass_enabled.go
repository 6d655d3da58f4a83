//go:build webhooktest

package signature

const bypassAvailable = true
