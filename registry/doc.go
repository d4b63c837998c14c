// Package registry binds the on-chain domain registry, which maps domain
// names to encrypted owner handles.
//
// Client implements interfaces.OnchainRegistry on top of a go-ethereum
// BoundContract. Reads go through resolveOwnerHandle and nameOf; a zero owner
// handle means the name is free. Writes send registerDomain(name, handle),
// where handle is the ciphertext produced by the encryption gateway. The
// contract interface has no slot for the validity proof, so the client
// conveys it according to a ProofConvention:
//
//	ProofAppended  proof bytes follow the ABI-encoded arguments (default)
//	ProofOmitted   bare registerDomain call
//
// Factory binds the client to the backend and signer of a wallet session:
//
//	factory := registry.NewFactory(cfg.RegistryContract, registry.ProofAppended)
//	reg, err := factory.RegistryFor(wallet.Backend(), auth)
//	handle, err := reg.ResolveOwnerHandle(ctx, "alice")
//
// MemoryRegistry and MockRegistry stand in for the contract in tests.
package registry
