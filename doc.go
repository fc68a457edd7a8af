// Package linka and its sub-packages implement the backend services of the Linka marketplace, where buyers and sellers
// settle payments through escrow smart contracts on an EVM chain.
/*
linka provides you with two microservices:

1) a linka microservice (package api) that implements a RESTful API for custodial identities and their wallets, vendor
 discovery, the escrow lifecycle (create, release, refund, dispute and the dispute resolution pathway), direct payments,
 reputation and the transaction history.

2) a reconciler microservice (package reconciler) that repairs the escrow operations whose off-chain record could not
 be written and keeps reputation copies fresh.

Architecture

The smart contracts own the authoritative state of escrows, disputes and reputation. The services keep an off-chain
mirror of escrows and users (package lib/store) for query convenience and marketplace metadata. Every chain operation
is first recorded in an intent log, then sent to the chain, then mirrored (package escrow). When the mirror write fails
the intent stays open and a mirrorfailed event is sent to the message broker (package lib/msg); the reconciler consumes
those events and sweeps the intent log periodically, so chain and mirror converge. A chain operation is never retried
blindly: the reconciler first looks for its effect on chain.

The mirror lives in MongoDB. The intent log lives in MongoDB or PostgreSQL and must be shared by both services.
Reputation reads go to the registry contract first and fall back to copies in redis (package lib/cache) or in the user
record, always labelled with the time they were read from the chain (package reputation).

Private keys of custodial wallets are sealed with a server encryption key and, when the user has one, the user's
password (package lib/wallet). The operator key signing contract transactions is a hex key or derived from an HD seed.

The microservices can be monitored via a Prometheus API by setting the flag "-m" at startup.

Linka

The linka microservice can be started running cmd/linka/main.go. Every reply is a JSON envelope
{success, data, error}. Requests are rate limited per client address and bodies are capped at 10MB.

Reconciler

The reconciler microservice can be started running cmd/reconciler/main.go. Intents are swept once they are older than
a grace period; an intent whose effect is never found on chain is abandoned after the abandon period.

*/
package linka
