// Command genschema emits the JSON schema of the publish API request body.
// Editor frontends use it to validate batches before sending them.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/pagewright/pagewright/internal/server/dto"
)

func main() {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
	}

	schema := r.Reflect(&dto.PublishRequest{})
	schema.Title = "Publish Request"
	schema.Description = "Request body schema for POST /api/publish"
	schema.ID = ""

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		if err := os.WriteFile(os.Args[1], data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(string(data))
	}
}
