package store

import (
	"encoding/json"
	"time"

	"github.com/tarancss/linka/lib/util"
)

// Mirror statuses of an escrow.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusDisputed  = "disputed"
)

// Escrow types.
const (
	TypeMarketplace = "marketplace"
	TypeService     = "service"
)

// TimelineEntry is one step of an escrow history. Timelines are append-only.
type TimelineEntry struct {
	Status      string    `json:"status" bson:"status"`
	Description string    `json:"description" bson:"description"`
	Actor       string    `json:"actor" bson:"actor"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// Dispute is the dispute sub-record of a transaction.
type Dispute struct {
	Reason    string    `json:"reason" bson:"reason"`
	Evidence  []string  `json:"evidence" bson:"evidence"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Transaction is the off-chain mirror of an escrow.
type Transaction struct {
	TransactionID       string                 `json:"transactionId" bson:"transactionId"`
	EscrowID            string                 `json:"escrowId" bson:"escrowId"`
	BuyerEmail          string                 `json:"buyerEmail" bson:"buyerEmail"`
	SellerEmail         string                 `json:"sellerEmail" bson:"sellerEmail"`
	Amount              string                 `json:"amount" bson:"amount"`
	Currency            string                 `json:"currency" bson:"currency"`
	TokenAddress        string                 `json:"tokenAddress" bson:"tokenAddress"`
	Type                string                 `json:"type" bson:"type"`
	Metadata            map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	ConversationContext map[string]interface{} `json:"conversationContext,omitempty" bson:"conversationContext,omitempty"`
	Status              string                 `json:"status" bson:"status"`
	Timeline            []TimelineEntry        `json:"timeline" bson:"timeline"`
	Dispute             *Dispute               `json:"dispute,omitempty" bson:"dispute,omitempty"`
	CreatedAt           time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// TransactionUpdate moves a transaction to Status appending Entry to its timeline. Dispute is set when not nil.
type TransactionUpdate struct {
	Status  string
	Entry   TimelineEntry
	Dispute *Dispute
}

// TxFilter narrows ListTransactions.
type TxFilter struct {
	Status string
	Type   string
	Limit  int
}

// Vendor categories accepted in profiles.
var Categories = []string{ //nolint:gochecknoglobals // enumeration
	"electronics", "clothing", "food", "services", "digital",
	"art", "collectibles", "automotive", "home", "beauty", "sports",
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	return util.In(Categories, c)
}

// Profile is the marketplace profile of a user.
type Profile struct {
	Name       string   `json:"name" bson:"name"`
	Bio        string   `json:"bio,omitempty" bson:"bio,omitempty"`
	Avatar     string   `json:"avatar,omitempty" bson:"avatar,omitempty"`
	IsVendor   bool     `json:"isVendor" bson:"isVendor"`
	Categories []string `json:"categories" bson:"categories"`
	Location   string   `json:"location,omitempty" bson:"location,omitempty"`
	Website    string   `json:"website,omitempty" bson:"website,omitempty"`
}

// Reputation sources.
const (
	SourceLocal = "local" // default score, never read from the chain
	SourceChain = "chain"
)

// DefaultScore is the reputation every user starts with.
const DefaultScore = 500

// Reputation is the off-chain copy of a user's reputation. Score is a cache of the registry value as of LastSynced;
// the counters are marketplace statistics kept only off-chain.
type Reputation struct {
	Score                 uint64    `json:"score" bson:"score"`
	TotalTransactions     int       `json:"totalTransactions" bson:"totalTransactions"`
	CompletedTransactions int       `json:"completedTransactions" bson:"completedTransactions"`
	Disputes              int       `json:"disputes" bson:"disputes"`
	TotalVolume           string    `json:"totalVolume" bson:"totalVolume"`
	Source                string    `json:"source" bson:"source"`
	LastSynced            time.Time `json:"lastSynced" bson:"lastSynced"`
}

// User is a marketplace identity with its custodial wallet.
type User struct {
	Email               string     `json:"email" bson:"email"`
	Username            string     `json:"username" bson:"username"`
	WalletAddress       string     `json:"walletAddress" bson:"walletAddress"`
	EncryptedPrivateKey string     `json:"-" bson:"encryptedPrivateKey"`
	PasswordHash        string     `json:"-" bson:"passwordHash,omitempty"`
	FarcasterFID        string     `json:"farcasterFid,omitempty" bson:"farcasterFid,omitempty"`
	Profile             Profile    `json:"profile" bson:"profile"`
	Reputation          Reputation `json:"reputation" bson:"reputation"`
	CreatedAt           time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// VendorFilter narrows ListVendors. Page starts at 1.
type VendorFilter struct {
	Category      string
	MinReputation uint64
	Page          int
	Limit         int
}

// Intent operations.
const (
	OpCreate  = "create"
	OpRelease = "release"
	OpRefund  = "refund"
	OpDispute = "dispute"
)

// Intent statuses. Pending, submitted and mined intents are open and will be swept by the reconciler.
const (
	IntentPending    = "pending"    // recorded, chain call not known to have reached the node
	IntentSubmitted  = "submitted"  // tx hash known, receipt not seen
	IntentMined      = "mined"      // chain call succeeded, mirror write not done
	IntentConfirmed  = "confirmed"  // chain and mirror agree
	IntentUnmirrored = "unmirrored" // chain call succeeded, there was no mirror record to update
	IntentFailed     = "failed"     // rejected or reverted
	IntentAbandoned  = "abandoned"  // never found on chain
)

// OpenStatuses are the statuses swept by the reconciler.
var OpenStatuses = []string{IntentPending, IntentSubmitted, IntentMined} //nolint:gochecknoglobals // enumeration

// Intent is an outbox record for one chain operation. Payload holds the operation arguments as JSON.
type Intent struct {
	ID        string          `json:"id" bson:"_id"`
	Op        string          `json:"op" bson:"op"`
	EscrowID  string          `json:"escrowId,omitempty" bson:"escrowId,omitempty"`
	TxHash    string          `json:"txHash,omitempty" bson:"txHash,omitempty"`
	FromBlock uint64          `json:"fromBlock" bson:"fromBlock"`
	Payload   json.RawMessage `json:"payload,omitempty" bson:"payload,omitempty"`
	Status    string          `json:"status" bson:"status"`
	Error     string          `json:"error,omitempty" bson:"error,omitempty"`
	Attempts  int             `json:"attempts" bson:"attempts"`
	CreatedAt time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// IntentUpdate changes the status of an intent. Empty fields are left untouched.
type IntentUpdate struct {
	Status   string
	TxHash   string
	EscrowID string
	Error    string
}
