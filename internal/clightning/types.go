package clightning

// Invoice statuses as reported by lightningd
const (
	InvoiceUnpaid  = "unpaid"
	InvoicePaid    = "paid"
	InvoiceExpired = "expired"
)

// Address represents an announced or bound node address
type Address struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Port    uint16 `json:"port,omitempty"`
	Socket  string `json:"socket,omitempty"`
}

// NodeInfo represents the response from getinfo
type NodeInfo struct {
	ID                  string    `json:"id"`
	Alias               string    `json:"alias"`
	Color               string    `json:"color"`
	NumPeers            int       `json:"num_peers"`
	NumPendingChannels  int       `json:"num_pending_channels"`
	NumActiveChannels   int       `json:"num_active_channels"`
	NumInactiveChannels int       `json:"num_inactive_channels"`
	Address             []Address `json:"address"`
	Binding             []Address `json:"binding"`
	Version             string    `json:"version"`
	BlockHeight         uint32    `json:"blockheight"`
	Network             string    `json:"network"`
	FeesCollectedMsat   uint64    `json:"fees_collected_msat"`
	LightningDir        string    `json:"lightning-dir"`
}

// Invoice represents a single invoice from listinvoices or delinvoice
type Invoice struct {
	Label              string `json:"label"`
	Bolt11             string `json:"bolt11,omitempty"`
	PaymentHash        string `json:"payment_hash"`
	AmountMsat         uint64 `json:"amount_msat,omitempty"`
	Status             string `json:"status"`
	Description        string `json:"description,omitempty"`
	ExpiresAt          int64  `json:"expires_at"`
	CreatedIndex       uint64 `json:"created_index,omitempty"`
	PayIndex           uint64 `json:"pay_index,omitempty"`
	AmountReceivedMsat uint64 `json:"amount_received_msat,omitempty"`
	PaidAt             int64  `json:"paid_at,omitempty"`
	PaymentPreimage    string `json:"payment_preimage,omitempty"`
}

// InvoiceList represents the response from listinvoices
type InvoiceList struct {
	Invoices []Invoice `json:"invoices"`
}

// NewInvoice represents the response from invoice. lightningd does not echo
// the label back, so the client fills it in from the request.
type NewInvoice struct {
	Label         string `json:"label"`
	Bolt11        string `json:"bolt11"`
	PaymentHash   string `json:"payment_hash"`
	PaymentSecret string `json:"payment_secret"`
	ExpiresAt     int64  `json:"expires_at"`
	CreatedIndex  uint64 `json:"created_index,omitempty"`
}

// DecodedPayment represents the response from decodepay
type DecodedPayment struct {
	Currency           string `json:"currency"`
	CreatedAt          int64  `json:"created_at"`
	Expiry             int64  `json:"expiry"`
	Payee              string `json:"payee"`
	AmountMsat         uint64 `json:"amount_msat,omitempty"`
	Description        string `json:"description,omitempty"`
	DescriptionHash    string `json:"description_hash,omitempty"`
	PaymentHash        string `json:"payment_hash"`
	MinFinalCLTVExpiry int    `json:"min_final_cltv_expiry"`
	PaymentSecret      string `json:"payment_secret,omitempty"`
	Signature          string `json:"signature,omitempty"`
}

// request is a JSON-RPC 2.0 call envelope
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}
