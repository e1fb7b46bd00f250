package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kdimtricp/rollcall/internal/camera"
	"github.com/kdimtricp/rollcall/internal/config"
	"github.com/kdimtricp/rollcall/internal/detect"
	"github.com/kdimtricp/rollcall/internal/fingerprint"
)

// check-camera opens the configured camera, grabs one frame and runs the
// configured detector on it.
func main() {
	var (
		frames  = flag.Int("frames", 1, "Number of frames to grab")
		save    = flag.String("save", "", "Write the last frame to this path")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("Checking camera")
	fmt.Println("===============")

	cam, err := camera.New(cfg.Camera)
	if err != nil {
		log.Fatal("Invalid camera configuration:", err)
	}
	fmt.Printf("Source: %s (%s)\n", cam.Name(), cfg.Camera.Kind)

	if err := cam.Open(ctx); err != nil {
		log.Fatal("Camera unavailable: ", err)
	}
	defer cam.Close()
	fmt.Println("Camera opened")

	detector := detect.New(cfg.Detector)
	if err := detect.Available(detector); err != nil {
		fmt.Printf("Detector: unavailable (%v)\n", err)
	} else {
		fmt.Printf("Detector: %s\n", cfg.Detector.Kind)
	}

	hasher, err := fingerprint.NewHasher(cfg.Match.Hash)
	if err != nil {
		log.Fatal(err)
	}

	for i := 0; i < *frames; i++ {
		start := time.Now()
		frame, err := cam.Frame(ctx)
		if err != nil {
			log.Fatalf("Failed to read frame %d: %v", i, err)
		}
		b := frame.Bounds()
		fmt.Printf("Frame %d: %dx%d in %s\n", i, b.Dx(), b.Dy(), time.Since(start).Round(time.Millisecond))

		if detect.Available(detector) == nil {
			regions, err := detector.Detect(ctx, frame)
			if err != nil {
				fmt.Printf("  detection failed: %v\n", err)
			}
			for j, region := range regions {
				crop := detect.Crop(frame, region)
				if crop == nil {
					continue
				}
				fp, err := hasher.Hash(crop)
				if err != nil {
					fmt.Printf("  face %d at %v: hash failed: %v\n", j, region, err)
					continue
				}
				fmt.Printf("  face %d at %v: %s\n", j, region, fp)
			}
			if len(regions) == 0 {
				fmt.Println("  no faces")
			}
		}

		if *save != "" && i == *frames-1 {
			if err := imaging.Save(frame, *save); err != nil {
				log.Fatalf("Failed to save frame: %v", err)
			}
			fmt.Printf("Saved frame to %s\n", *save)
		}
	}
}
