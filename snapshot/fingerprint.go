package snapshot

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// changeThreshold is the Hamming distance above which two structure
// fingerprints count as different pages.
const changeThreshold = 3

// Fingerprint computes a 64-bit SimHash of the given text.
// Uses FNV-64a on word-level tokens with bit vector accumulation.
func Fingerprint(text string) uint64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Changed reports whether two structure fingerprints describe different
// pages.
func Changed(before, after uint64) bool {
	return Distance(before, after) > changeThreshold
}

// Structure fingerprints the element structure of doc. Tag names and ids
// count, text and other attributes do not, so a login page whose inputs
// were filled keeps its fingerprint while a page swap does not.
func Structure(doc *html.Node) uint64 {
	tags := elementTokens(doc)
	if len(tags) == 0 {
		return 0
	}

	shingles := makeShingles(tags, 3)
	if len(shingles) == 0 {
		return Fingerprint(strings.Join(tags, " "))
	}
	return Fingerprint(strings.Join(shingles, " "))
}

// elementTokens lists the document's elements in tree order as "tag" or
// "tag#id".
func elementTokens(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tok := n.Data
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val != "" {
					tok += "#" + a.Val
					break
				}
			}
			out = append(out, tok)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// makeShingles creates n-gram shingles from a slice of tokens.
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], "_"))
	}
	return shingles
}
