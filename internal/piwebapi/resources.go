package piwebapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Resource collections addressable by path.
const (
	ResourceAssetServers   = "assetservers"
	ResourceAssetDatabases = "assetdatabases"
	ResourceDataServers    = "dataservers"
	ResourceElements       = "elements"
	ResourceAttributes     = "attributes"
	ResourcePoints         = "points"
	ResourceEventFrames    = "eventframes"
	ResourceTemplates      = "elementtemplates"
	ResourceCategories     = "elementcategories"
)

// AssetServerPath returns \\server.
func AssetServerPath(server string) string {
	return `\\` + server
}

// AssetDatabasePath returns \\server\database.
func AssetDatabasePath(server, database string) string {
	return `\\` + server + `\` + database
}

// ElementPath returns \\server\database\element.
func ElementPath(server, database, element string) string {
	return AssetDatabasePath(server, database) + `\` + element
}

// EventFramePath returns \\server\database\EventFrames[name].
func EventFramePath(server, database, name string) string {
	return AssetDatabasePath(server, database) + `\EventFrames[` + name + `]`
}

// ElementTemplatePath returns \\server\database\ElementTemplates[name].
func ElementTemplatePath(server, database, name string) string {
	return AssetDatabasePath(server, database) + `\ElementTemplates[` + name + `]`
}

// DataServerPath returns \\PIServers[name].
func DataServerPath(name string) string {
	return `\\PIServers[` + name + `]`
}

// PointPath returns \\server\tag.
func PointPath(server, tag string) string {
	return `\\` + server + `\` + tag
}

// Home fetches the PI Web API home page.
func (c *Client) Home(ctx context.Context) (*Home, error) {
	var home Home
	if err := c.Get(ctx, "", &home); err != nil {
		return nil, err
	}
	return &home, nil
}

// SystemConfiguration fetches system/configuration.
func (c *Client) SystemConfiguration(ctx context.Context) (SystemConfiguration, error) {
	var cfg SystemConfiguration
	if err := c.Get(ctx, "system/configuration", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InstanceConfiguration fetches system/instanceconfiguration.
func (c *Client) InstanceConfiguration(ctx context.Context) (*InstanceConfiguration, error) {
	var cfg InstanceConfiguration
	if err := c.Get(ctx, "system/instanceconfiguration", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ByPath looks up an object in a resource collection by its path.
func (c *Client) ByPath(ctx context.Context, resource, path string) (*Object, error) {
	var obj Object
	target := withQuery(resource, url.Values{"path": {path}})
	if err := c.Get(ctx, target, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// AssetServerByPath looks up an AF server.
func (c *Client) AssetServerByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourceAssetServers, path)
}

// AssetDatabaseByPath looks up an AF database.
func (c *Client) AssetDatabaseByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourceAssetDatabases, path)
}

// DataServerByPath looks up a PI Data Archive.
func (c *Client) DataServerByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourceDataServers, path)
}

// ElementByPath looks up an AF element.
func (c *Client) ElementByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourceElements, path)
}

// AttributeByPath looks up an AF attribute, e.g. \\server\db\element|attribute.
func (c *Client) AttributeByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourceAttributes, path)
}

// EventFrameByPath looks up an event frame.
func (c *Client) EventFrameByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourceEventFrames, path)
}

// ElementTemplateByPath looks up an element template.
func (c *Client) ElementTemplateByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourceTemplates, path)
}

// PointByPath looks up a PI point.
func (c *Client) PointByPath(ctx context.Context, path string) (*Object, error) {
	return c.ByPath(ctx, ResourcePoints, path)
}

// FindPoints lists points on a data server whose names match nameFilter.
func (c *Client) FindPoints(ctx context.Context, dataServerWebID, nameFilter string) ([]Object, error) {
	var items Items[Object]
	target := withQuery(fmt.Sprintf("dataservers/%s/points", dataServerWebID), url.Values{"nameFilter": {nameFilter}})
	if err := c.Get(ctx, target, &items); err != nil {
		return nil, err
	}
	return items.Items, nil
}

// Elements lists the child elements of a database.
func (c *Client) Elements(ctx context.Context, databaseWebID string, maxCount int) ([]Object, error) {
	var items Items[Object]
	target := withQuery(fmt.Sprintf("assetdatabases/%s/elements", databaseWebID), url.Values{"maxCount": {strconv.Itoa(maxCount)}})
	if err := c.Get(ctx, target, &items); err != nil {
		return nil, err
	}
	return items.Items, nil
}

// Attributes lists the attributes of an element.
func (c *Client) Attributes(ctx context.Context, elementWebID string) ([]Object, error) {
	var items Items[Object]
	if err := c.Get(ctx, fmt.Sprintf("elements/%s/attributes", elementWebID), &items); err != nil {
		return nil, err
	}
	return items.Items, nil
}

// GetObject reads the object at a Location URL.
func (c *Client) GetObject(ctx context.Context, location string) (*Object, error) {
	var obj Object
	if err := c.Get(ctx, location, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// CreateAssetDatabase creates a database on an AF server and returns its Location.
func (c *Client) CreateAssetDatabase(ctx context.Context, assetServerWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("assetservers/%s/assetdatabases", assetServerWebID), spec)
}

// CreateCategory creates an element category in a database.
func (c *Client) CreateCategory(ctx context.Context, databaseWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("assetdatabases/%s/elementcategories", databaseWebID), spec)
}

// CreateElementTemplate creates an element template in a database.
func (c *Client) CreateElementTemplate(ctx context.Context, databaseWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("assetdatabases/%s/elementtemplates", databaseWebID), spec)
}

// CreateElement creates a root element in a database.
func (c *Client) CreateElement(ctx context.Context, databaseWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("assetdatabases/%s/elements", databaseWebID), spec)
}

// CreateChildElement creates an element under another element.
func (c *Client) CreateChildElement(ctx context.Context, parentWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("elements/%s/elements", parentWebID), spec)
}

// CreateAttribute creates an attribute on an element.
func (c *Client) CreateAttribute(ctx context.Context, elementWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("elements/%s/attributes", elementWebID), spec)
}

// CreateEventFrame creates an event frame in a database.
func (c *Client) CreateEventFrame(ctx context.Context, databaseWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("assetdatabases/%s/eventframes", databaseWebID), spec)
}

// CreatePoint creates a PI point on a data server.
func (c *Client) CreatePoint(ctx context.Context, dataServerWebID string, spec ObjectSpec) (string, error) {
	return c.Post(ctx, fmt.Sprintf("dataservers/%s/points", dataServerWebID), spec)
}

// Search runs an indexed search query.
func (c *Client) Search(ctx context.Context, query string, count int) (*SearchResult, error) {
	params := url.Values{"q": {query}}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}
	var result SearchResult
	if err := c.Get(ctx, withQuery("search/query", params), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ImportDatabase loads an AF XML export into the database.
func (c *Client) ImportDatabase(ctx context.Context, databaseWebID string, xml []byte) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("assetdatabases/%s/import", databaseWebID), xml,
		map[string]string{"Content-Type": "text/xml"})
	return err
}
