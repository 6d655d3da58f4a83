// Package main Payhook API
//
//	@title						Payhook API
//	@version					1.0
//	@description				Payment gateway webhook ingestion: Click, Alipay, PayPal, PayFort and 2Checkout.
//
//	@contact.name				Tradelane Payments
//
//	@license.name				Proprietary
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Operator token. Format: "Bearer {token}"
//
//	@tag.name					webhooks
//	@tag.description			Provider notification endpoints
//
//	@tag.name					ops
//	@tag.description			Operator replay, retry and projection endpoints
package main
