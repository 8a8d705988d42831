// Package providers contains built-in payment gateway implementations.
// Production deployments supply their own core.CollectionGateway and
// core.DisbursementGateway; the sandbox subpackage covers local development
// and integration tests.
package providers
