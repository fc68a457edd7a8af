package chain

// Contract ABIs, restricted to the methods and events used by the services.
const (
	escrowABI = `[
{"type":"function","name":"createEscrow","stateMutability":"payable","inputs":[{"name":"_seller","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_token","type":"address"},{"name":"_deadline","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"releaseEscrow","stateMutability":"nonpayable","inputs":[{"name":"_escrowId","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"refundEscrow","stateMutability":"nonpayable","inputs":[{"name":"_escrowId","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"disputeEscrow","stateMutability":"nonpayable","inputs":[{"name":"_escrowId","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"escrows","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],"outputs":[{"name":"buyer","type":"address"},{"name":"seller","type":"address"},{"name":"amount","type":"uint256"},{"name":"token","type":"address"},{"name":"deadline","type":"uint256"},{"name":"released","type":"bool"},{"name":"refunded","type":"bool"},{"name":"disputed","type":"bool"}]},
{"type":"event","name":"EscrowCreated","anonymous":false,"inputs":[{"name":"escrowId","type":"bytes32","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"seller","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"token","type":"address","indexed":false},{"name":"deadline","type":"uint256","indexed":false}]}
]`

	disputeABI = `[
{"type":"function","name":"openDispute","stateMutability":"nonpayable","inputs":[{"name":"_escrowId","type":"bytes32"},{"name":"_evidence","type":"string"}],"outputs":[]},
{"type":"function","name":"addEvidence","stateMutability":"nonpayable","inputs":[{"name":"_escrowId","type":"bytes32"},{"name":"_evidence","type":"string"}],"outputs":[]},
{"type":"function","name":"resolveDispute","stateMutability":"nonpayable","inputs":[{"name":"_escrowId","type":"bytes32"},{"name":"_winner","type":"address"}],"outputs":[]},
{"type":"function","name":"getDispute","stateMutability":"view","inputs":[{"name":"_escrowId","type":"bytes32"}],"outputs":[{"name":"initiator","type":"address"},{"name":"evidence","type":"string[]"},{"name":"winner","type":"address"},{"name":"resolved","type":"bool"},{"name":"createdAt","type":"uint256"}]}
]`

	paymentABI = `[
{"type":"function","name":"makePayment","stateMutability":"payable","inputs":[{"name":"_payee","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_token","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]}
]`

	reputationABI = `[
{"type":"function","name":"updateReputation","stateMutability":"nonpayable","inputs":[{"name":"_user","type":"address"},{"name":"_score","type":"uint256"}],"outputs":[]},
{"type":"function","name":"getReputation","stateMutability":"view","inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

	erc20ABI = `[
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`
)
