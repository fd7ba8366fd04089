package bundle

import (
	"errors"

	"github.com/evanw/esbuild/pkg/api"
)

// Minify minifies the bundle code, the result is still a classic script.
func Minify(code string) (string, error) {
	ret := api.Transform(code, api.TransformOptions{
		Target:            api.ES2020,
		Platform:          api.PlatformBrowser,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LegalComments:     api.LegalCommentsInline,
		Loader:            api.LoaderJS,
	})
	if len(ret.Errors) > 0 {
		return "", errors.New(ret.Errors[0].Text)
	}
	return string(ret.Code), nil
}
