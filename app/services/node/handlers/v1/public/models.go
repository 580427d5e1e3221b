package public

import (
	"fmt"

	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/crypt"
)

// submitTx is the payload clients send to place a transaction. Byte
// fields travel as base64; addresses as base58; the amount as a decimal
// or 0x-hex string so 256 bit values survive JSON.
type submitTx struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Fee       uint64 `json:"fee"`
	Timestamp uint32 `json:"timestamp" validate:"required"`
	Data      string `json:"data"`
	PublicKey string `json:"public_key" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// toDatabaseTx converts the wire model into a domain transaction.
func (app submitTx) toDatabaseTx() (database.Tx, error) {
	from, err := database.ToAddress(app.From)
	if err != nil {
		return database.Tx{}, fmt.Errorf("from: %w", err)
	}
	to, err := database.ToAddress(app.To)
	if err != nil {
		return database.Tx{}, fmt.Errorf("to: %w", err)
	}
	amount, err := database.BalanceFromString(app.Amount)
	if err != nil {
		return database.Tx{}, err
	}

	var data []byte
	if app.Data != "" {
		if data, err = crypt.Base64Decode(app.Data); err != nil {
			return database.Tx{}, fmt.Errorf("data: %w", err)
		}
	}
	pub, err := crypt.Base64Decode(app.PublicKey)
	if err != nil {
		return database.Tx{}, fmt.Errorf("public_key: %w", err)
	}
	sig, err := crypt.Base64Decode(app.Signature)
	if err != nil {
		return database.Tx{}, fmt.Errorf("signature: %w", err)
	}

	tx := database.Tx{
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       app.Fee,
		Timestamp: app.Timestamp,
		Data:      data,
		Sign: database.Sign{
			PublicKey: pub,
			Signature: sig,
		},
	}
	return tx, nil
}

// =============================================================================

// tx is the response model for one transaction.
type tx struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Fee       uint64 `json:"fee"`
	Timestamp uint32 `json:"timestamp"`
	Data      string `json:"data,omitempty"`
	Signed    bool   `json:"signed"`
}

func toAppTx(dbTx database.Tx) tx {
	return tx{
		Hash:      dbTx.Hash().String(),
		From:      dbTx.From.String(),
		To:        dbTx.To.String(),
		Amount:    dbTx.Amount.Dec(),
		Fee:       dbTx.Fee,
		Timestamp: dbTx.Timestamp,
		Data:      crypt.Base64Encode(dbTx.Data),
		Signed:    !dbTx.Sign.IsNull(),
	}
}

// block is the response model for one block.
type block struct {
	Hash      string `json:"hash"`
	Depth     uint64 `json:"depth"`
	PrevHash  string `json:"prev_hash"`
	Timestamp uint32 `json:"timestamp"`
	Coinbase  string `json:"coinbase"`
	Nonce     uint64 `json:"nonce"`
	Trans     []tx   `json:"transactions"`
}

func toAppBlock(b database.Block) block {
	trans := make([]tx, len(b.Trans))
	for i, dbTx := range b.Trans {
		trans[i] = toAppTx(dbTx)
	}

	return block{
		Hash:      b.Hash().String(),
		Depth:     b.Depth,
		PrevHash:  b.PrevHash.String(),
		Timestamp: b.Timestamp,
		Coinbase:  b.Coinbase.String(),
		Nonce:     b.Nonce,
		Trans:     trans,
	}
}

// accountInfo is the response model for one account.
type accountInfo struct {
	Address  string   `json:"address"`
	Type     string   `json:"type"`
	Balance  string   `json:"balance"`
	TxHashes []string `json:"tx_hashes"`
	CodeHash string   `json:"code_hash,omitempty"`
}

func toAppAccount(info database.AccountInfo) accountInfo {
	hashes := make([]string, len(info.TxHashes))
	for i, h := range info.TxHashes {
		hashes[i] = h.String()
	}

	app := accountInfo{
		Address:  info.Address.String(),
		Type:     info.Type.String(),
		Balance:  info.Balance.Dec(),
		TxHashes: hashes,
	}
	if info.Type == database.AccountContract {
		app.CodeHash = info.CodeHash.String()
	}
	return app
}

// txStatus is the response model for a transaction verdict.
type txStatus struct {
	Code    string `json:"code"`
	Action  string `json:"action"`
	GasLeft uint64 `json:"gas_left"`
	Message string `json:"message,omitempty"`
}

func toAppStatus(status database.TransactionStatus) txStatus {
	return txStatus{
		Code:    status.Code.String(),
		Action:  status.Action.String(),
		GasLeft: status.GasLeft,
		Message: status.Message,
	}
}
