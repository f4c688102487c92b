package clightning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	decodepay "github.com/fiatjaf/ln-decodepay"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

const (
	// DefaultInvoiceExpiry matches lightningd's default invoice lifetime
	DefaultInvoiceExpiry = 7 * 24 * time.Hour
	// DefaultFinalCLTVExpiry matches lightningd's cltv-final default
	DefaultFinalCLTVExpiry = 18
)

var networkParams = map[string]*chaincfg.Params{
	"bitcoin": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"signet":  &chaincfg.SigNetParams,
	"regtest": &chaincfg.RegressionNetParams,
}

// InvoicePrefix returns the bolt11 human-readable prefix for a lightningd network name
func InvoicePrefix(network string) (string, error) {
	params, ok := networkParams[network]
	if !ok {
		return "", fmt.Errorf("unknown network %q", network)
	}
	if network == "signet" {
		return "lntbs", nil
	}
	return "ln" + params.Bech32HRPSegwit, nil
}

// chainForInvoice picks the network whose prefix is the longest match for bolt11,
// falling back to mainnet
func chainForInvoice(bolt11 string) *chaincfg.Params {
	bolt11 = strings.ToLower(bolt11)
	chain, matched := &chaincfg.MainNetParams, 0
	for network, params := range networkParams {
		prefix, _ := InvoicePrefix(network)
		if len(prefix) > matched && strings.HasPrefix(bolt11, prefix) {
			chain, matched = params, len(prefix)
		}
	}
	return chain
}

// MockNode implements Node in memory for development and testing
type MockNode struct {
	mu        sync.Mutex
	info      NodeInfo
	key       *btcec.PrivateKey
	params    *chaincfg.Params
	invoices  []*Invoice
	preimages map[string]string
	nextIndex uint64
	payIndex  uint64
	now       func() time.Time
}

var _ Node = (*MockNode)(nil)

// NewMockNode creates a mock node on the given network with a fresh identity key
func NewMockNode(network string) (*MockNode, error) {
	params, ok := networkParams[network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", network)
	}

	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate node key: %w", err)
	}
	id := hex.EncodeToString(key.PubKey().SerializeCompressed())

	return &MockNode{
		info: NodeInfo{
			ID:           id,
			Alias:        "mock-" + id[:8],
			Color:        id[2:8],
			Address:      []Address{},
			Binding:      []Address{{Type: "ipv4", Address: "127.0.0.1", Port: 9735}},
			Version:      "v24.02-mock",
			BlockHeight:  1,
			Network:      network,
			LightningDir: "/tmp/lightning/" + network,
		},
		key:       key,
		params:    params,
		preimages: make(map[string]string),
		now:       time.Now,
	}, nil
}

func (m *MockNode) GetInfo(ctx context.Context) (*NodeInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.info
	return &info, nil
}

func (m *MockNode) ListInvoices(ctx context.Context, label string) ([]Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	invoices := []Invoice{}
	for _, inv := range m.invoices {
		m.expire(inv)
		if label == "" || inv.Label == label {
			invoices = append(invoices, *inv)
		}
	}
	return invoices, nil
}

func (m *MockNode) DecodePay(ctx context.Context, bolt11 string) (*DecodedPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoded, err := decodepay.DecodepayWithChain(chainForInvoice(bolt11), bolt11)
	if err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "Invalid bolt11: " + err.Error()}
	}

	return &DecodedPayment{
		Currency:           decoded.Currency,
		CreatedAt:          int64(decoded.CreatedAt),
		Expiry:             int64(decoded.Expiry),
		Payee:              decoded.Payee,
		AmountMsat:         uint64(decoded.MSatoshi),
		Description:        decoded.Description,
		DescriptionHash:    decoded.DescriptionHash,
		PaymentHash:        decoded.PaymentHash,
		MinFinalCLTVExpiry: int(decoded.MinFinalCLTVExpiry),
	}, nil
}

func (m *MockNode) Invoice(ctx context.Context, msat, label, description string) (*NewInvoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var amount uint64
	if msat != "any" {
		n, err := strconv.ParseUint(msat, 10, 64)
		if err != nil || n == 0 {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "amount_msat: should be positive msat or 'any': invalid token '" + msat + "'"}
		}
		amount = n
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inv := range m.invoices {
		if inv.Label == label {
			return nil, &RPCError{Code: CodeLabelExists, Message: "Duplicate label '" + label + "'"}
		}
	}

	preimage, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	secret, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	preimageBytes, _ := hex.DecodeString(preimage)
	hash := sha256.Sum256(preimageBytes)
	paymentHash := hex.EncodeToString(hash[:])

	createdAt := m.now()
	bolt11, err := m.encodeInvoice(hash, secret, amount, description, createdAt)
	if err != nil {
		return nil, err
	}

	m.nextIndex++
	inv := &Invoice{
		Label:        label,
		Bolt11:       bolt11,
		PaymentHash:  paymentHash,
		AmountMsat:   amount,
		Status:       InvoiceUnpaid,
		Description:  description,
		ExpiresAt:    createdAt.Add(DefaultInvoiceExpiry).Unix(),
		CreatedIndex: m.nextIndex,
	}
	m.invoices = append(m.invoices, inv)
	m.preimages[label] = preimage

	return &NewInvoice{
		Label:         label,
		Bolt11:        inv.Bolt11,
		PaymentHash:   inv.PaymentHash,
		PaymentSecret: secret,
		ExpiresAt:     inv.ExpiresAt,
		CreatedIndex:  inv.CreatedIndex,
	}, nil
}

// encodeInvoice builds a bolt11 string signed with the node key. A zero amount
// leaves the amount field out, which is how "any" invoices are encoded.
func (m *MockNode) encodeInvoice(hash [32]byte, secret string, amount uint64, description string, createdAt time.Time) (string, error) {
	var paymentAddr [32]byte
	secretBytes, err := hex.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("invalid payment secret: %w", err)
	}
	copy(paymentAddr[:], secretBytes)

	options := []func(*zpay32.Invoice){
		zpay32.Description(description),
		zpay32.Expiry(DefaultInvoiceExpiry),
		zpay32.PaymentAddr(paymentAddr),
		zpay32.CLTVExpiry(DefaultFinalCLTVExpiry),
	}
	if amount > 0 {
		options = append(options, zpay32.Amount(lnwire.MilliSatoshi(amount)))
	}

	invoice, err := zpay32.NewInvoice(m.params, hash, createdAt, options...)
	if err != nil {
		return "", fmt.Errorf("failed to build invoice: %w", err)
	}

	bolt11, err := invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			digest := sha256.Sum256(msg)
			return ecdsa.SignCompact(m.key, digest[:], true)
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign invoice: %w", err)
	}
	return bolt11, nil
}

func (m *MockNode) DelInvoice(ctx context.Context, label, status string) (*Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch status {
	case InvoiceUnpaid, InvoicePaid, InvoiceExpired:
	default:
		return nil, &RPCError{Code: CodeInvalidParams, Message: "status: should be an invoice status: invalid token '" + status + "'"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, inv := range m.invoices {
		if inv.Label != label {
			continue
		}
		m.expire(inv)
		if inv.Status != status {
			return nil, &RPCError{
				Code:    CodeStatusUnexpected,
				Message: fmt.Sprintf("Invoice status is %s not %s", inv.Status, status),
			}
		}
		m.invoices = append(m.invoices[:i], m.invoices[i+1:]...)
		delete(m.preimages, label)
		deleted := *inv
		return &deleted, nil
	}
	return nil, &RPCError{Code: CodeInvoiceNotFound, Message: "Unknown invoice"}
}

// SettleInvoice marks an unpaid invoice as paid, simulating an incoming payment
func (m *MockNode) SettleInvoice(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inv := range m.invoices {
		if inv.Label != label {
			continue
		}
		m.expire(inv)
		if inv.Status != InvoiceUnpaid {
			return fmt.Errorf("invoice %q is %s", label, inv.Status)
		}
		m.payIndex++
		inv.Status = InvoicePaid
		inv.PayIndex = m.payIndex
		inv.AmountReceivedMsat = inv.AmountMsat
		inv.PaidAt = m.now().Unix()
		inv.PaymentPreimage = m.preimages[label]
		return nil
	}
	return fmt.Errorf("invoice %q not found", label)
}

// expire flips an unpaid invoice past its expiry to expired. Callers hold m.mu.
func (m *MockNode) expire(inv *Invoice) {
	if inv.Status == InvoiceUnpaid && m.now().Unix() >= inv.ExpiresAt {
		inv.Status = InvoiceExpired
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
