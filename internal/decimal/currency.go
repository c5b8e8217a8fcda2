package decimal

import "strings"

// ISO 4217 active alphabetic codes
var currencies = map[string]struct{}{}

func init() {
	codes := `AED AFN ALL AMD ANG AOA ARS AUD AWG AZN BAM BBD BDT BGN BHD BIF BMD BND BOB BOV
BRL BSD BTN BWP BYN BZD CAD CDF CHE CHF CHW CLF CLP CNY COP COU CRC CUC CUP CVE CZK
DJF DKK DOP DZD EGP ERN ETB EUR FJD FKP GBP GEL GHS GIP GMD GNF GTQ GYD HKD HNL HTG
HUF IDR ILS INR IQD IRR ISK JMD JOD JPY KES KGS KHR KMF KPW KRW KWD KYD KZT LAK LBP
LKR LRD LSL LYD MAD MDL MGA MKD MMK MNT MOP MRU MUR MVR MWK MXN MXV MYR MZN NAD NGN
NIO NOK NPR NZD OMR PAB PEN PGK PHP PKR PLN PYG QAR RON RSD RUB RWF SAR SBD SCR SDG
SEK SGD SHP SLE SLL SOS SRD SSP STN SVC SYP SZL THB TJS TMT TND TOP TRY TTD TWD TZS
UAH UGX USD USN UYI UYU UYW UZS VED VES VND VUV WST XAF XAG XAU XBA XBB XBC XBD XCD
XDR XOF XPD XPF XPT XSU XTS XUA XXX YER ZAR ZMW ZWG ZWL`
	for _, code := range strings.Fields(codes) {
		currencies[code] = struct{}{}
	}
}

// IsKnownCurrency reports whether code is an ISO 4217 alphabetic code
func IsKnownCurrency(code string) bool {
	_, ok := currencies[code]
	return ok
}

// CheckCurrency returns a construction error for unknown codes
func CheckCurrency(code string) error {
	if !IsKnownCurrency(code) {
		return NewConstructionError(ErrUnknownCurrency, "currency", code, "not an ISO 4217 code")
	}
	return nil
}
