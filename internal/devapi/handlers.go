// internal/devapi/handlers.go
package devapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/devapi/middleware"
	"github.com/your-org/eid-storefront/internal/domain/cart"
	"github.com/your-org/eid-storefront/internal/domain/order"
	"github.com/your-org/eid-storefront/internal/pkg/auth"
)

const maxUploadSize = 10 << 20

// handler serves the REST endpoints
type handler struct {
	state     *state
	jwt       *auth.JWTManager
	passwords *auth.PasswordManager
	rule      order.DeliveryRule
	log       logrus.FieldLogger
}

type userDoc struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	District string `json:"district,omitempty"`
	Role     string `json:"role"`
}

type productDoc struct {
	ID     string          `json:"_id"`
	Name   string          `json:"name"`
	Slug   string          `json:"slug"`
	Price  decimal.Decimal `json:"price"`
	Images []string        `json:"images"`
	Sizes  []string        `json:"sizes,omitempty"`
}

type cartItemDoc struct {
	Product  productDoc `json:"product"`
	Size     string     `json:"size"`
	Quantity int        `json:"quantity"`
}

type orderDoc struct {
	ID             string          `json:"_id"`
	Items          []cartItemDoc   `json:"items"`
	Customer       order.Customer  `json:"customer"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	Total          decimal.Decimal `json:"total"`
	Status         order.Status    `json:"status"`
	PaymentMethod  string          `json:"paymentMethod"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func toUserDoc(a *account) userDoc {
	return userDoc{
		ID:       a.ID,
		Name:     a.Name,
		Email:    a.Email,
		Phone:    a.Phone,
		Address:  a.Address,
		District: a.District,
		Role:     a.Role,
	}
}

func toCartDocs(lines []cart.Line) []cartItemDoc {
	docs := make([]cartItemDoc, 0, len(lines))
	for _, l := range lines {
		images := []string{}
		if l.Image != "" {
			images = append(images, l.Image)
		}
		docs = append(docs, cartItemDoc{
			Product:  productDoc{ID: l.ProductID, Name: l.Name, Slug: l.Slug, Price: l.Price, Images: images},
			Size:     l.Size,
			Quantity: l.Quantity,
		})
	}
	return docs
}

func toOrderDoc(o order.Order) orderDoc {
	return orderDoc{
		ID:             o.ID,
		Items:          toCartDocs(o.Items),
		Customer:       o.Customer,
		Subtotal:       o.Subtotal,
		DeliveryCharge: o.DeliveryCharge,
		Total:          o.Total,
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		CreatedAt:      o.CreatedAt,
	}
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func sentence(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// Health reports liveness
func (h *handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account without starting a session
func (h *handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request data",
			"errors":  []gin.H{{"msg": err.Error()}},
		})
		return
	}

	hash, err := h.passwords.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusBadRequest, sentence(errors.Unwrap(err)))
		return
	}

	a, err := h.state.createAccount(account{Name: req.Name, Email: req.Email, Phone: req.Phone, PasswordHash: hash})
	if err != nil {
		fail(c, http.StatusConflict, sentence(err))
		return
	}

	h.log.WithField("user_id", a.ID).Info("Account registered")
	ok(c, http.StatusCreated, "User registered successfully", gin.H{"user": toUserDoc(a)})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login starts a new session, replacing any earlier one
func (h *handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	a, found := h.state.accountByEmail(req.Email)
	if !found || h.passwords.VerifyPassword(req.Password, a.PasswordHash) != nil {
		fail(c, http.StatusUnauthorized, sentence(errInvalidLogin))
		return
	}

	session, err := h.state.beginSession(a.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to start session")
		return
	}

	access, refresh, err := h.issue(a, session)
	if err != nil {
		c.Error(err)
		fail(c, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}

	ok(c, http.StatusOK, "Login successful", gin.H{
		"user":         toUserDoc(a),
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token for a new token pair
func (h *handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		fail(c, http.StatusBadRequest, "Refresh token is required")
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		fail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	a, found := h.state.accountByID(claims.UserID)
	if !found {
		fail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if a.Session != claims.Session {
		fail(c, http.StatusUnauthorized, middleware.SessionExpiredMessage)
		return
	}

	access, refresh, err := h.issue(a, a.Session)
	if err != nil {
		c.Error(err)
		fail(c, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}

	ok(c, http.StatusOK, "Token refreshed", gin.H{
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (h *handler) issue(a *account, session int) (string, string, error) {
	access, err := h.jwt.GenerateAccessToken(a.ID, a.Email, a.Role, session)
	if err != nil {
		return "", "", err
	}
	refresh, err := h.jwt.GenerateRefreshToken(a.ID, a.Email, session)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Profile returns the signed-in account
func (h *handler) Profile(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)
	a, found := h.state.accountByID(userID)
	if !found {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	ok(c, http.StatusOK, "", gin.H{"user": toUserDoc(a)})
}

// Logout acknowledges the sign out
func (h *handler) Logout(c *gin.Context) {
	ok(c, http.StatusOK, "Logged out successfully", nil)
}

// Products lists the catalog
func (h *handler) Products(c *gin.Context) {
	docs := make([]productDoc, 0, len(catalog))
	for _, p := range catalog {
		images := []string{}
		if p.Image != "" {
			images = append(images, p.Image)
		}
		docs = append(docs, productDoc{ID: p.ID, Name: p.Name, Slug: p.Slug, Price: p.Price, Images: images, Sizes: p.Sizes})
	}
	ok(c, http.StatusOK, "", gin.H{"items": docs, "meta": gin.H{"total": len(docs)}})
}

// GetCart returns the caller's cart
func (h *handler) GetCart(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)
	ok(c, http.StatusOK, "", gin.H{"items": toCartDocs(h.state.cartOf(userID))})
}

type cartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// AddToCart adds a line or increases its quantity
func (h *handler) AddToCart(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Product is required")
		return
	}
	userID, _ := middleware.GetUserIDFromContext(c)
	if err := h.state.addToCart(userID, req.ProductID, req.Size, req.Quantity); err != nil {
		fail(c, http.StatusBadRequest, sentence(err))
		return
	}
	ok(c, http.StatusOK, "Item added to cart", gin.H{"items": toCartDocs(h.state.cartOf(userID))})
}

// UpdateCart sets a line quantity. Zero removes the line.
func (h *handler) UpdateCart(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Product is required")
		return
	}
	userID, _ := middleware.GetUserIDFromContext(c)
	if err := h.state.setCartQuantity(userID, req.ProductID, req.Size, req.Quantity); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errItemNotInCart) {
			status = http.StatusNotFound
		}
		fail(c, status, sentence(err))
		return
	}
	ok(c, http.StatusOK, "Cart updated", gin.H{"items": toCartDocs(h.state.cartOf(userID))})
}

// ClearCart empties the caller's cart
func (h *handler) ClearCart(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)
	h.state.clearCart(userID)
	c.Status(http.StatusNoContent)
}

type createOrderRequest struct {
	Items         []cart.Line    `json:"items" binding:"required"`
	Customer      order.Customer `json:"customer"`
	PaymentMethod string         `json:"paymentMethod"`
}

// CreateOrder places an order. Guests may order without a session.
func (h *handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid order data")
		return
	}
	if len(req.Items) == 0 {
		fail(c, http.StatusBadRequest, "Order has no items")
		return
	}
	if strings.TrimSpace(req.Customer.Name) == "" || strings.TrimSpace(req.Customer.Phone) == "" {
		fail(c, http.StatusBadRequest, "Customer name and phone are required")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cod"
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	o := h.state.placeOrder(userID, req.Items, req.Customer, req.PaymentMethod, h.rule)

	h.log.WithFields(logrus.Fields{"order_id": o.ID, "total": o.Total.String()}).Info("Order placed")
	ok(c, http.StatusCreated, "Order created successfully", gin.H{"order": toOrderDoc(o.Order)})
}

// ListOrders returns the caller's orders, or every order for admins
func (h *handler) ListOrders(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)
	if middleware.IsAdminFromContext(c) {
		userID = ""
	}
	orders := h.state.ordersFor(userID)
	docs := make([]orderDoc, 0, len(orders))
	for _, o := range orders {
		docs = append(docs, toOrderDoc(o))
	}
	ok(c, http.StatusOK, "", gin.H{"items": docs, "meta": gin.H{"total": len(docs)}})
}

// GetOrder returns one order visible to the caller
func (h *handler) GetOrder(c *gin.Context) {
	o, found := h.state.findOrder(c.Param("id"))
	userID, _ := middleware.GetUserIDFromContext(c)
	if !found || (o.UserID != userID && !middleware.IsAdminFromContext(c)) {
		fail(c, http.StatusNotFound, "Order not found")
		return
	}
	ok(c, http.StatusOK, "", gin.H{"order": toOrderDoc(o.Order)})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus moves an order through its lifecycle
func (h *handler) UpdateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Status is required")
		return
	}
	next, err := order.ParseStatus(req.Status)
	if err != nil {
		fail(c, http.StatusBadRequest, "Unknown status "+req.Status)
		return
	}

	o, err := h.state.transition(c.Param("id"), next)
	var terr *transitionError
	switch {
	case errors.Is(err, errOrderNotFound):
		fail(c, http.StatusNotFound, "Order not found")
		return
	case errors.As(err, &terr):
		fail(c, http.StatusUnprocessableEntity, terr.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, "Failed to update order status")
		return
	}

	h.log.WithFields(logrus.Fields{"order_id": o.ID, "status": o.Status}).Info("Order status updated")
	ok(c, http.StatusOK, "Order status updated", gin.H{"order": toOrderDoc(*o)})
}

// Upload stores a multipart file field named "file"
func (h *handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		fail(c, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	name := h.state.saveUpload(upload{Name: header.Filename, ContentType: contentType, Data: data})

	ok(c, http.StatusCreated, "File uploaded successfully", gin.H{
		"url":         "/uploads/" + name,
		"name":        name,
		"size":        len(data),
		"contentType": contentType,
		"folder":      c.PostForm("folder"),
	})
}

// GetUpload serves a stored file
func (h *handler) GetUpload(c *gin.Context) {
	u, err := h.state.uploadByName(c.Param("name"))
	if err != nil {
		fail(c, http.StatusNotFound, "File not found")
		return
	}
	c.Data(http.StatusOK, u.ContentType, u.Data)
}
