package constants

// DocumentKind tags a recognized reference number.
type DocumentKind string

const (
	KindMandat    DocumentKind = "mandat"
	KindBordereau DocumentKind = "bordereau"
)

// Date categories inferred from the text preceding a date occurrence.
// Stable values (stored in results and returned over the API).
const (
	DateEmission  = "emission"
	DatePaiement  = "paiement"
	DateSignature = "signature"
	DateEcheance  = "echeance"
	DateAutre     = "autre"
)

// Amount categories inferred from the text preceding an amount occurrence.
const (
	AmountTotal = "total"
	AmountNet   = "net"
	AmountBrut  = "brut"
	AmountTaxe  = "taxe"
	AmountAutre = "autre"
)

// CurrencyXAF is the only currency these documents carry (franc CFA).
const CurrencyXAF = "XAF"
