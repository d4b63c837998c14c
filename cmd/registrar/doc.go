/*
Command registrar runs the encrypted domain registration workflow.

	registrar serve --wallet-rpc http://127.0.0.1:1248
	registrar check --private-key $KEY --rpc-addr $SEPOLIA_RPC alice
	registrar register --private-key $KEY --rpc-addr $SEPOLIA_RPC alice
	registrar status --server http://127.0.0.1:8080

serve exposes the workflow over HTTP for a presentation layer, see package
httpserver. check and register run a single operation against the wallet and
exit; register prints the resulting ledger record. status reads a running
server.

The encryption gateway is loaded in the background on start; a registration
waits up to 15 seconds for it before failing.
*/
package main
