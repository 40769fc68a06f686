package plates

import "iter"

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Total is the number of codes produced by Codes.
const Total = len(alphabet) * len(alphabet)

// Codes yields every two-letter code in lexicographic order, "AA" through "ZZ".
// Each call starts again from "AA".
func Codes() iter.Seq[Code] {
	return func(yield func(Code) bool) {
		for i := 0; i < len(alphabet); i++ {
			for j := 0; j < len(alphabet); j++ {
				if !yield(Code([]byte{alphabet[i], alphabet[j]})) {
					return
				}
			}
		}
	}
}

// All materializes Codes into a slice.
func All() []Code {
	out := make([]Code, 0, Total)
	for code := range Codes() {
		out = append(out, code)
	}
	return out
}

// CodeAt returns the code at zero-based position i of the sequence.
func CodeAt(i int) (Code, bool) {
	if i < 0 || i >= Total {
		return "", false
	}
	n := len(alphabet)
	return Code([]byte{alphabet[i/n], alphabet[i%n]}), true
}
