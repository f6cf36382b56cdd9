package viz

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/caffeineduck/goviz/native"
)

// ImageSize describes an image referenced by the graph. Width and height
// are copied into the placeholder as given: JSON numbers or strings.
type ImageSize struct {
	Name   string    `json:"name"`
	Width  Dimension `json:"width"`
	Height Dimension `json:"height"`
}

// Dimension is an image width or height in its textual form.
type Dimension string

func (d *Dimension) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data, false)
	if err != nil {
		return fmt.Errorf("image dimension: %w", err)
	}
	*d = Dimension(s)
	return nil
}

// Image builds an ImageSize from numeric dimensions.
func Image(name string, width, height float64) ImageSize {
	return ImageSize{
		Name:   name,
		Width:  Dimension(strconv.FormatFloat(width, 'f', -1, 64)),
		Height: Dimension(strconv.FormatFloat(height, 'f', -1, 64)),
	}
}

func validDimension(d Dimension) bool {
	return strings.TrimSpace(string(d)) != ""
}

func placeholderSVG(width, height Dimension) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
  <svg xmlns="http://www.w3.org/2000/svg" width="` + string(width) + `" height="` + string(height) + `"></svg>
  `)
}

// provisionImages writes a placeholder for each image and returns the paths
// written. On error the paths written so far are still returned.
func provisionImages(ctx context.Context, fs native.FileSystem, images []ImageSize) ([]string, error) {
	for i, img := range images {
		if err := validateImage(i, img); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		path := fs.Join("/", img.Name)
		if err := fs.MkdirAll(fs.Dir(path)); err != nil {
			return paths, fmt.Errorf("create image directory for %q: %w", img.Name, err)
		}
		if err := fs.Write(path, placeholderSVG(img.Width, img.Height)); err != nil {
			return paths, fmt.Errorf("write image %q: %w", img.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func validateImage(i int, img ImageSize) error {
	switch {
	case img.Name == "":
		return &ImageError{Index: i, Name: img.Name, Reason: "image name must not be empty"}
	case !validDimension(img.Width):
		return &ImageError{Index: i, Name: img.Name, Reason: "image width must be a number or string"}
	case !validDimension(img.Height):
		return &ImageError{Index: i, Name: img.Name, Reason: "image height must be a number or string"}
	}
	return nil
}

// removeImages deletes each path that still exists.
func removeImages(fs native.FileSystem, paths []string) error {
	var errs []error
	for _, p := range paths {
		ok, err := fs.Exists(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if err := fs.Remove(p); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}
