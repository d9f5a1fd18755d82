package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8((x + y) % 255)
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	return img
}

// Creates a folder of JPEGs without EXIF so every date has to come from a
// sidecar, the filename or the filesystem:
//
//	go run ./test [dir]
func main() {
	dir := "sample"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		fmt.Printf("Error creating %s: %v\n", dir, err)
		os.Exit(1)
	}

	img := createTestImage(400, 300)
	files := []string{
		"IMG_20240315_143022.jpg",
		"PXL_20240316_081500.jpg",
		"DJI_20240317_120000_0001.JPG",
		"IMG-20240315-WA0001.jpg",
		"2024-03-18_19-20-21.jpg",
		"takeout.jpg",
		"sidecar.jpg",
		"undated.jpg",
		"nested/IMG_20240320_120000.JPG",
	}

	for _, name := range files {
		path := filepath.Join(dir, name)
		file, err := os.Create(path)
		if err != nil {
			fmt.Printf("Error creating %s: %v\n", path, err)
			continue
		}

		options := &jpeg.Options{Quality: 85}
		if err := jpeg.Encode(file, img, options); err != nil {
			fmt.Printf("Error encoding %s: %v\n", path, err)
		} else {
			fmt.Printf("Created clean file: %s\n", path)
		}
		file.Close()
	}

	sidecars := map[string]string{
		"takeout.jpg.json": `{"title":"takeout.jpg","photoTakenTime":{"timestamp":"1710600000"}}`,
		"sidecar.xmp":      `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:Description xmp:CreateDate="2024-03-19T07:08:09"/></x:xmpmeta>`,
	}
	for name, body := range sidecars {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			fmt.Printf("Error creating %s: %v\n", path, err)
			continue
		}
		fmt.Printf("Created sidecar: %s\n", path)
	}

	// Only the filesystem fallback can date this one.
	old := time.Date(2019, 7, 1, 12, 0, 0, 0, time.Local)
	_ = os.Chtimes(filepath.Join(dir, "undated.jpg"), old, old)

	fmt.Println("\nSample folder ready. Try:")
	fmt.Printf("  exifrename scan %s --parse-filename --fallback modified -r\n", dir)
}
