package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// --- Extractor Model Prompts ---
const ExtractorSystemPrompt = "You are an OCR tool that extracts structured data from Bills of Lading (BOLs). You must never guess: when a value is missing or unreadable, return null for it."
const ExtractorUserPrompt = `Extract the shipment described on this Bill of Lading page.

Follow these rules precisely:
1.  "ship_from" and "ship_to": company name, contact person, contact number and full address as printed.
2.  "carrier_info": carrier name, SCAC code and PRO number.
3.  "customer_order_information": customer order number, shipment ID, number of pallets, number of cartons and total weight in pounds.
4.  Copy identifiers exactly as printed, including leading zeros.
5.  Use null for anything that is not on the page. Do not infer values from other fields.

Return ONLY the JSON object.`

// VertexClient holds the pre-configured generative model used for BOL extraction.
type VertexClient struct {
	ExtractorModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding the extractor model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string, opts ...option.ClientOption) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	extractorModel := baseClient.GenerativeModel(modelName)
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ShipmentSchema(),
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		ExtractorModel: extractorModel,
		baseClient:     baseClient,
	}, nil
}

// ExtractShipmentJSON sends one page image to the extractor model and returns its raw JSON answer.
func (c *VertexClient) ExtractShipmentJSON(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	resp, err := c.ExtractorModel.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: image},
		genai.Text(ExtractorUserPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	jsonString := ExtractJSONContent(resp)
	if jsonString == "" {
		return "", fmt.Errorf("gemini returned an empty response instead of JSON")
	}
	return jsonString, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// ExtractJSONContent gets the raw text content from the model response.
func ExtractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	// Strip markdown fences if present.
	cleanJSON := strings.TrimSpace(b.String())
	cleanJSON = strings.TrimPrefix(cleanJSON, "```json")
	cleanJSON = strings.TrimPrefix(cleanJSON, "```")
	cleanJSON = strings.TrimSuffix(cleanJSON, "```")
	return strings.TrimSpace(cleanJSON)
}

// ShipmentSchema mirrors models.Shipment. Leaves are nullable so the model can decline a field.
func ShipmentSchema() *genai.Schema {
	nullableString := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Nullable: true, Description: desc}
	}
	address := func(desc string) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeObject,
			Description: desc,
			Properties: map[string]*genai.Schema{
				"company_name":   nullableString("The name of the company."),
				"contact_person": nullableString("The contact person at the company."),
				"contact_number": nullableString("The contact number for the company."),
				"address":        nullableString("The address of the company."),
			},
			Required: []string{"company_name", "address"},
		}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"ship_from": address("The address from which the shipment is being sent."),
			"ship_to":   address("The address to which the shipment is being sent."),
			"carrier_info": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"carrier_name": nullableString("The name of the carrier."),
					"scac":         nullableString("The Standard Carrier Alpha Code (SCAC) of the carrier."),
					"pro_number":   nullableString("The pro number of the carrier."),
				},
				Required: []string{"carrier_name", "scac", "pro_number"},
			},
			"customer_order_information": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"order_number": {Type: genai.TypeString, Description: "The customer order number."},
					"shipment_id":  {Type: genai.TypeString, Description: "The shipment ID."},
					"pallets":      {Type: genai.TypeInteger, Nullable: true, Description: "The number of pallets in the shipment."},
					"cartons":      {Type: genai.TypeInteger, Nullable: true, Description: "The number of cartons in the shipment."},
					"weight":       {Type: genai.TypeNumber, Nullable: true, Description: "The weight of the shipment in pounds."},
				},
				Required: []string{"order_number", "shipment_id"},
			},
		},
		Required: []string{"ship_from", "ship_to", "carrier_info", "customer_order_information"},
	}
}
