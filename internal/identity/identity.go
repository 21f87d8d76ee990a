// Package identity implements the BharatChain citizen identity layer.
//
// It provides:
//   - Hasher: salted UID hashes, DIDs and PBKDF2 biometric templates
//   - CitizenTokenIssuer: issues and verifies HS256 citizen session tokens
//   - DIDDocument: the W3C DID document served for each citizen
//   - RequireCitizenToken: Gin middleware enforcing Bearer session tokens
package identity
