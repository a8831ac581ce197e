// Package geo предоставляет клиент внешнего сервиса расстояний и геокодирования.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/orderhub-system/internal/model"
)

// StatusOK — статус валидного элемента в ответе сервиса расстояний.
const StatusOK = "OK"

// Client инкапсулирует HTTP-взаимодействие с сервисом расстояний.
// Сервис ненадёжен и ограничен по частоте запросов: каждая операция
// выполняется ровно одной попыткой с ограниченным временем ожидания.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Element описывает результат расчёта расстояния до одного пункта назначения.
type Element struct {
	Status         string `json:"status"`
	DistanceMeters int64  `json:"distance"`
}

type matrixResponse struct {
	Status   string    `json:"status"`
	Elements []Element `json:"elements"`
}

type geocodeResponse struct {
	Status string  `json:"status"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// NewClient создаёт клиент сервиса расстояний по указанному адресу и ключу.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) endpoint(path string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("distance client not configured")
	}
	if c.apiKey == "" {
		return "", fmt.Errorf("distance api key not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return base + path, nil
}

func formatCoords(p model.Coordinates) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// Distances запрашивает расстояния от точки origin до каждого пункта
// назначения. Элементы ответа идут в порядке пунктов назначения;
// валидность каждого определяется полем Status.
func (c *Client) Distances(ctx context.Context, origin model.Coordinates, destinations []model.Coordinates) ([]Element, error) {
	endpoint, err := c.endpoint("/api/distancematrix")
	if err != nil {
		return nil, err
	}

	dests := make([]string, 0, len(destinations))
	for _, d := range destinations {
		dests = append(dests, formatCoords(d))
	}

	q := url.Values{}
	q.Set("origins", formatCoords(origin))
	q.Set("destinations", strings.Join(dests, "|"))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Status != StatusOK {
		return nil, fmt.Errorf("distance service status: %s", result.Status)
	}

	return result.Elements, nil
}

// Geocode переводит адресную строку в координаты.
func (c *Client) Geocode(ctx context.Context, addr string) (*model.Coordinates, error) {
	endpoint, err := c.endpoint("/api/geocode")
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("address", addr)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Status != StatusOK {
		return nil, fmt.Errorf("geocode status: %s", result.Status)
	}

	return &model.Coordinates{Lat: result.Lat, Lng: result.Lng}, nil
}
