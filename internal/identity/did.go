package identity

// DIDDocument is the W3C DID document published for a citizen.
type DIDDocument struct {
	Context            string               `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
}

// VerificationMethod anchors the DID to the ledger block that created it.
type VerificationMethod struct {
	ID                  string `json:"id"`
	Type                string `json:"type"`
	Controller          string `json:"controller"`
	BlockchainAccountID string `json:"blockchainAccountId"`
}

// NewDIDDocument builds the document for did, whose IDENTITY block is blockHash.
func NewDIDDocument(did, blockHash string) *DIDDocument {
	keyID := did + "#keys-1"
	return &DIDDocument{
		Context: "https://www.w3.org/ns/did/v1",
		ID:      did,
		VerificationMethod: []VerificationMethod{{
			ID:                  keyID,
			Type:                "EcdsaSecp256k1VerificationKey2019",
			Controller:          did,
			BlockchainAccountID: blockHash,
		}},
		Authentication: []string{keyID},
	}
}
