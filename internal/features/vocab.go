package features

// DefaultVocabulary is the categorical table set shipped with the bundled
// model artifact. It exists so tests and the benchmark tool can build an
// encoder without loading the artifact from disk; production encoders come
// from the model file.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Version:            "1",
		TransactionTypes:   []string{"Withdrawal", "Transfer", "Cash Depos"},
		RecipientBanks:     []string{"ICICI Bank", "Bank of America"},
		RecipientCountries: []string{"India"},
		Descriptions:       []string{"Rent Payment", "Payment"},
	}
}
