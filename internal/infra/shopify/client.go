// Package shopify is a thin read-only client for the Storefront GraphQL API,
// consumed only to render shop pages. No SDK: the surface is three queries.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const apiVersion = "2024-01"

type Client struct {
	domain string
	token  string
	http   *http.Client
}

func NewClient(domain, token string) *Client {
	return &Client{
		domain: domain,
		token:  token,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether storefront credentials were provided. The shop
// endpoints degrade to 503 instead of failing at boot when they are not.
func (c *Client) Configured() bool {
	return c.domain != "" && c.token != ""
}

type Collection struct {
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

type Product struct {
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	ImageURL    string `json:"image_url,omitempty"`
	Available   bool   `json:"available"`
}

const collectionsQuery = `
{
  collections(first: 50) {
    edges { node { handle title description image { url } } }
  }
}`

const productByHandleQuery = `
query($handle: String!) {
  product(handle: $handle) {
    handle title description availableForSale
    priceRange { minVariantPrice { amount currencyCode } }
    featuredImage { url }
  }
}`

const collectionProductsQuery = `
query($handle: String!) {
  collection(handle: $handle) {
    products(first: 50) {
      edges {
        node {
          handle title description availableForSale
          priceRange { minVariantPrice { amount currencyCode } }
          featuredImage { url }
        }
      }
    }
  }
}`

type productNode struct {
	Handle           string `json:"handle"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	AvailableForSale bool   `json:"availableForSale"`
	PriceRange       struct {
		MinVariantPrice struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"minVariantPrice"`
	} `json:"priceRange"`
	FeaturedImage *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
}

func (n productNode) toProduct() Product {
	p := Product{
		Handle:      n.Handle,
		Title:       n.Title,
		Description: n.Description,
		Price:       n.PriceRange.MinVariantPrice.Amount,
		Currency:    n.PriceRange.MinVariantPrice.CurrencyCode,
		Available:   n.AvailableForSale,
	}
	if n.FeaturedImage != nil {
		p.ImageURL = n.FeaturedImage.URL
	}
	return p
}

func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var data struct {
		Collections struct {
			Edges []struct {
				Node struct {
					Handle      string `json:"handle"`
					Title       string `json:"title"`
					Description string `json:"description"`
					Image       *struct {
						URL string `json:"url"`
					} `json:"image"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"collections"`
	}
	if err := c.query(ctx, collectionsQuery, nil, &data); err != nil {
		return nil, err
	}

	out := make([]Collection, 0, len(data.Collections.Edges))
	for _, edge := range data.Collections.Edges {
		col := Collection{
			Handle:      edge.Node.Handle,
			Title:       edge.Node.Title,
			Description: edge.Node.Description,
		}
		if edge.Node.Image != nil {
			col.ImageURL = edge.Node.Image.URL
		}
		out = append(out, col)
	}
	return out, nil
}

func (c *Client) GetProductByHandle(ctx context.Context, handle string) (*Product, error) {
	var data struct {
		Product *productNode `json:"product"`
	}
	if err := c.query(ctx, productByHandleQuery, map[string]any{"handle": handle}, &data); err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, nil
	}
	p := data.Product.toProduct()
	return &p, nil
}

func (c *Client) GetCollectionProducts(ctx context.Context, handle string) ([]Product, error) {
	var data struct {
		Collection *struct {
			Products struct {
				Edges []struct {
					Node productNode `json:"node"`
				} `json:"edges"`
			} `json:"products"`
		} `json:"collection"`
	}
	if err := c.query(ctx, collectionProductsQuery, map[string]any{"handle": handle}, &data); err != nil {
		return nil, err
	}
	if data.Collection == nil {
		return nil, nil
	}

	out := make([]Product, 0, len(data.Collection.Products.Edges))
	for _, edge := range data.Collection.Products.Edges {
		out = append(out, edge.Node.toProduct())
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://%s/api/%s/graphql.json", c.domain, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("storefront request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storefront request: unexpected status %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode storefront response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("storefront query: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(envelope.Data, out)
}
