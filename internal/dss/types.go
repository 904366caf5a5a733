package dss

// Protocol constants understood by the signing service.
const (
	DigestSHA256            = "SHA256"
	DigestSHA512            = "SHA512"
	CanonicalizationExcC14N = "http://www.w3.org/2001/10/xml-exc-c14n#"
	ContainerASiCS          = "ASiC_S"
	SignatureLevelJAdESLTA  = "JAdES_BASELINE_LTA"
	PackagingEnveloping     = "ENVELOPING"
	JWSJSONSerialization    = "JSON_SERIALIZATION"
	EncryptionRSA           = "RSA"
	TimestampTypeDocument   = "DOCUMENT_TIMESTAMP"
	RemoteDocumentName      = "RemoteDocument"
	timestampDocumentPath   = "/one-document/timestampDocument"
	getDataToSignPath       = "/one-document/getDataToSign"
	signDocumentPath        = "/one-document/signDocument"
)

// []byte fields are sent base64 encoded by encoding/json, which is what the
// service expects for every binary value.

type timestampParameters struct {
	DigestAlgorithm        string  `json:"digestAlgorithm"`
	CanonicalizationMethod string  `json:"canonicalizationMethod"`
	TimestampContainerForm *string `json:"timestampContainerForm"`
}

type timestampRequest struct {
	TimestampParameters timestampParameters `json:"timestampParameters"`
	ToTimestampDocument timestampDocument   `json:"toTimestampDocument"`
}

type timestampDocument struct {
	Bytes []byte `json:"bytes"`
}

// bytesResponse is the common shape of every successful answer.
type bytesResponse struct {
	Bytes []byte `json:"bytes"`
}

type certificateToken struct {
	EncodedCertificate []byte `json:"encodedCertificate"`
}

type timestampToken struct {
	Binaries               []byte  `json:"binaries"`
	Type                   string  `json:"type"`
	CanonicalizationMethod *string `json:"canonicalizationMethod"`
	Includes               any     `json:"includes"`
}

type bLevelParams struct {
	TrustAnchorBPPolicy         bool     `json:"trustAnchorBPPolicy"`
	SigningDate                 int64    `json:"signingDate"`
	ClaimedSignerRoles          any      `json:"claimedSignerRoles"`
	PolicyID                    *string  `json:"policyId"`
	PolicyQualifier             *string  `json:"policyQualifier"`
	PolicyDescription           *string  `json:"policyDescription"`
	PolicyDigestAlgorithm       *string  `json:"policyDigestAlgorithm"`
	PolicyDigestValue           []byte   `json:"policyDigestValue"`
	PolicySpuri                 *string  `json:"policySpuri"`
	CommitmentTypeIndications   any      `json:"commitmentTypeIndications"`
	SignerLocationPostalAddress []string `json:"signerLocationPostalAddress"`
	SignerLocationPostalCode    *string  `json:"signerLocationPostalCode"`
	SignerLocationLocality      *string  `json:"signerLocationLocality"`
	SignerLocationStateOrProv   *string  `json:"signerLocationStateOrProvince"`
	SignerLocationCountry       *string  `json:"signerLocationCountry"`
	SignerLocationStreet        *string  `json:"signerLocationStreet"`
}

type signatureParameters struct {
	SigningCertificate              certificateToken    `json:"signingCertificate"`
	CertificateChain                []certificateToken  `json:"certificateChain"`
	DetachedContents                any                 `json:"detachedContents"`
	AsicContainerType               *string             `json:"asicContainerType"`
	SignatureLevel                  string              `json:"signatureLevel"`
	SignaturePackaging              string              `json:"signaturePackaging"`
	EmbedXML                        bool                `json:"embedXML"`
	ManifestSignature               bool                `json:"manifestSignature"`
	JWSSerializationType            string              `json:"jwsSerializationType"`
	SigDMechanism                   *string             `json:"sigDMechanism"`
	Base64URLEncodedPayload         bool                `json:"base64UrlEncodedPayload"`
	Base64URLEncodedEtsiUComponents bool                `json:"base64UrlEncodedEtsiUComponents"`
	SignatureAlgorithm              *string             `json:"signatureAlgorithm"`
	DigestAlgorithm                 string              `json:"digestAlgorithm"`
	EncryptionAlgorithm             string              `json:"encryptionAlgorithm"`
	ReferenceDigestAlgorithm        *string             `json:"referenceDigestAlgorithm"`
	MaskGenerationFunction          *string             `json:"maskGenerationFunction"`
	ContentTimestamps               []timestampToken    `json:"contentTimestamps"`
	ContentTimestampParameters      timestampParameters `json:"contentTimestampParameters"`
	SignatureTimestampParameters    timestampParameters `json:"signatureTimestampParameters"`
	ArchiveTimestampParameters      timestampParameters `json:"archiveTimestampParameters"`
	SignWithExpiredCertificate      bool                `json:"signWithExpiredCertificate"`
	GenerateTBSWithoutCertificate   bool                `json:"generateTBSWithoutCertificate"`
	ImageParameters                 any                 `json:"imageParameters"`
	SignatureIDToCounterSign        *string             `json:"signatureIdToCounterSign"`
	BLevelParams                    bLevelParams        `json:"blevelParams"`
}

type toSignDocument struct {
	Bytes           []byte  `json:"bytes"`
	DigestAlgorithm *string `json:"digestAlgorithm"`
	Name            string  `json:"name"`
}

type signatureValue struct {
	Algorithm string `json:"algorithm"`
	Value     []byte `json:"value"`
}

// envelope is the signing request sent to getDataToSign and, with SignatureValue
// set, to signDocument.
type envelope struct {
	Parameters     signatureParameters `json:"parameters"`
	ToSignDocument toSignDocument      `json:"toSignDocument"`
	SignatureValue *signatureValue     `json:"signatureValue,omitempty"`
}

func stringPtr(s string) *string {
	return &s
}

func newTimestampRequest(document []byte) timestampRequest {
	return timestampRequest{
		TimestampParameters: timestampParameters{
			DigestAlgorithm:        DigestSHA512,
			CanonicalizationMethod: CanonicalizationExcC14N,
			TimestampContainerForm: stringPtr(ContainerASiCS),
		},
		ToTimestampDocument: timestampDocument{Bytes: document},
	}
}

// newEnvelope builds the signing request for document, embedding the content
// timestamp token and the signer's certificate chain.
func newEnvelope(document, token, certificate []byte, chain [][]byte, signingDate int64) *envelope {
	certChain := make([]certificateToken, 0, len(chain))
	for _, der := range chain {
		certChain = append(certChain, certificateToken{EncodedCertificate: der})
	}

	return &envelope{
		Parameters: signatureParameters{
			SigningCertificate:   certificateToken{EncodedCertificate: certificate},
			CertificateChain:     certChain,
			SignatureLevel:       SignatureLevelJAdESLTA,
			SignaturePackaging:   PackagingEnveloping,
			JWSSerializationType: JWSJSONSerialization,
			DigestAlgorithm:      DigestSHA256,
			EncryptionAlgorithm:  EncryptionRSA,
			ContentTimestamps: []timestampToken{
				{Binaries: token, Type: TimestampTypeDocument},
			},
			ContentTimestampParameters: timestampParameters{
				DigestAlgorithm:        DigestSHA512,
				CanonicalizationMethod: CanonicalizationExcC14N,
				TimestampContainerForm: stringPtr(ContainerASiCS),
			},
			SignatureTimestampParameters: timestampParameters{
				DigestAlgorithm:        DigestSHA512,
				CanonicalizationMethod: CanonicalizationExcC14N,
			},
			ArchiveTimestampParameters: timestampParameters{
				DigestAlgorithm:        DigestSHA512,
				CanonicalizationMethod: CanonicalizationExcC14N,
			},
			BLevelParams: bLevelParams{
				TrustAnchorBPPolicy:         true,
				SigningDate:                 signingDate,
				SignerLocationPostalAddress: []string{},
			},
		},
		ToSignDocument: toSignDocument{
			Bytes: document,
			Name:  RemoteDocumentName,
		},
	}
}

// withSignature returns a copy of e carrying the signature value.
func (e *envelope) withSignature(algorithm string, value []byte) *envelope {
	signed := *e
	signed.SignatureValue = &signatureValue{Algorithm: algorithm, Value: value}
	return &signed
}
