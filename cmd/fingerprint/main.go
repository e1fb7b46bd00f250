package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/rollcall/internal/faceindex"
	"github.com/kdimtricp/rollcall/internal/fingerprint"
)

// fingerprint prints the fingerprint of each image and, when given more than
// one, the distance of every image to the first.
func main() {
	var (
		hash      = flag.String("hash", fingerprint.HashGradient, "Hash variant (gradient or perceptual)")
		threshold = flag.Int("threshold", faceindex.DefaultThreshold, "Acceptance threshold used for the match column")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("Usage: fingerprint [-hash gradient|perceptual] image [image...]")
	}

	hasher, err := fingerprint.NewHasher(*hash)
	if err != nil {
		log.Fatal(err)
	}

	var first fingerprint.Fingerprint
	for i, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}

		img, err := fingerprint.Decode(data)
		if err != nil {
			log.Fatalf("Failed to decode %s: %v", path, err)
		}

		fp, err := hasher.Hash(img)
		if err != nil {
			log.Fatalf("Failed to hash %s: %v", path, err)
		}

		if i == 0 {
			first = fp
			fmt.Printf("%s  %s\n", fp, path)
			continue
		}

		d := fingerprint.Distance(first, fp)
		match := "no"
		if d <= *threshold {
			match = "yes"
		}
		fmt.Printf("%s  %s  distance=%d similarity=%.2f match=%s\n", fp, path, d, fingerprint.Similarity(d), match)
	}
}
