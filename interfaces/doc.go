// Package interfaces defines the types shared by the registration workflow
// components and the contracts between them, separating interface
// definitions from implementations.
//
// # External services
//
// WalletProvider is the user's wallet: account authorization, network
// switching, transaction signing and change notifications. OnchainRegistry
// is the registry contract bound to a session's signer; RegistryFactory
// produces one per session.
//
// # Workflow state
//
// Session binds the application to one authorized account on the supported
// chain. DomainQuery carries the candidate name and its availability
// Verdict. EncryptedClaim is a ciphertext handle with its validity proof.
// RegistrationRecord is one ledger entry per submission attempt.
//
// # Errors
//
// Every failure the workflow surfaces is one of the sentinel errors in
// errors.go, wrapped with context. Match them with errors.Is.
package interfaces
