package file

import "github.com/badno/pimsync/internal/output"

const defaultOutputDir = "output"

// NewRegistry returns a registry of the CSV and JSON adapters writing to dir
func NewRegistry(dir, metafieldNamespace, metafieldType string, pretty bool) *output.Registry {
	reg, err := output.NewRegistry(
		NewCSVAdapter(CSVConfig{
			OutputDir:          dir,
			MetafieldNamespace: metafieldNamespace,
			MetafieldType:      metafieldType,
		}),
		NewJSONAdapter(JSONConfig{OutputDir: dir, Pretty: pretty}),
	)
	if err != nil {
		// the built-in adapters claim disjoint formats
		panic(err)
	}
	return reg
}
