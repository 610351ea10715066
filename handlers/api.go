package handlers

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/auth"
	"github.com/karthikraju391/farmconnect/marketplace"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/karthikraju391/farmconnect/orders"
	"github.com/karthikraju391/farmconnect/otp"
	"github.com/shopspring/decimal"
)

// Probe is one component reported by /api/health.
type Probe struct {
	Name  string
	Check func() bool
}

// API is the REST surface under /api.
type API struct {
	log      *slog.Logger
	auth     *auth.Service
	otp      *otp.Service
	products *marketplace.Service
	prices   *marketplace.PriceFeed
	orders   *orders.Service
	probes   []Probe
	now      func() time.Time
}

func NewAPI(log *slog.Logger, authSvc *auth.Service, otpSvc *otp.Service, products *marketplace.Service,
	prices *marketplace.PriceFeed, orderSvc *orders.Service, probes ...Probe) *API {
	return &API{
		log:      log,
		auth:     authSvc,
		otp:      otpSvc,
		products: products,
		prices:   prices,
		orders:   orderSvc,
		probes:   probes,
		now:      time.Now,
	}
}

// Register mounts the routes on r.
func (a *API) Register(r fiber.Router) {
	requireAuth := auth.Middleware(a.auth.Tokens())

	r.Get("/health", a.health)
	r.Get("/market-prices", a.marketPrices)

	authRoutes := r.Group("/auth")
	authRoutes.Post("/send-otp", a.sendOTP)
	authRoutes.Post("/register", a.register)
	authRoutes.Post("/login", a.login)
	authRoutes.Get("/profile", requireAuth, a.profile)

	products := r.Group("/products")
	products.Get("/all", a.listProducts)
	products.Get("/my-products", requireAuth, a.myProducts)
	products.Post("/add", requireAuth, a.addProduct)
	products.Get("/:id", a.getProduct)
	products.Put("/:id", requireAuth, a.updateProduct)
	products.Delete("/:id", requireAuth, a.deleteProduct)

	orderRoutes := r.Group("/orders", requireAuth)
	orderRoutes.Post("/create", a.createOrder)
	orderRoutes.Get("/buyer-orders", a.buyerOrders)
	orderRoutes.Get("/farmer-orders", a.farmerOrders)
	orderRoutes.Get("/:id", a.getOrder)
	orderRoutes.Put("/:id/status", a.updateOrderStatus)
	orderRoutes.Post("/:id/rate", a.rateOrder)
}

func parseBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperrors.Validation("handlers.parseBody", "Invalid request body")
	}
	return nil
}

func currentActor(c *fiber.Ctx) (models.Actor, error) {
	a, ok := auth.ActorFrom(c)
	if !ok {
		return models.Actor{}, apperrors.Unauthenticated("handlers.currentActor", "Not authenticated")
	}
	return a, nil
}

func (a *API) health(c *fiber.Ctx) error {
	status := "healthy"
	components := make(fiber.Map, len(a.probes))
	for _, p := range a.probes {
		if p.Check() {
			components[p.Name] = "up"
			continue
		}
		components[p.Name] = "down"
		status = "degraded"
	}
	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":     status,
		"timestamp":  a.now().UTC(),
		"components": components,
	})
}

func (a *API) marketPrices(c *fiber.Ctx) error {
	if product := strings.TrimSpace(c.Query("product")); product != "" {
		q := a.prices.Price(product)
		return c.JSON(fiber.Map{
			"success":     true,
			"product":     product,
			"price":       q.Price,
			"trend":       q.Trend,
			"change":      q.Change,
			"lastUpdated": q.LastUpdated,
		})
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"prices":      a.prices.Prices(),
		"lastUpdated": a.now().UTC(),
	})
}

func (a *API) sendOTP(c *fiber.Ctx) error {
	var body struct {
		Mobile string `json:"mobile"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if err := a.otp.Send(c.UserContext(), strings.TrimSpace(body.Mobile)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "OTP sent successfully"})
}

func (a *API) register(c *fiber.Ctx) error {
	var req auth.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := a.auth.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Registration successful", "token": session.Token, "user": session.User})
}

func (a *API) login(c *fiber.Ctx) error {
	var req auth.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := a.auth.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Login successful", "token": session.Token, "user": session.User})
}

func (a *API) profile(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	user, err := a.auth.Profile(c.UserContext(), me.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "user": user})
}

func (a *API) listProducts(c *fiber.Ctx) error {
	const op = "handlers.listProducts"
	f := marketplace.Filter{
		Category: c.Query("category"),
		Location: c.Query("location"),
		Search:   c.Query("search"),
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", marketplace.DefaultPageSize),
	}
	for _, bound := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"minPrice", &f.MinPrice}, {"maxPrice", &f.MaxPrice}} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return apperrors.Validation(op, "%s must be a number", bound.name)
		}
		*bound.dst = &d
	}
	page, err := a.products.List(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "products": page.Products, "pagination": page.Pagination})
}

func (a *API) myProducts(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	products, err := a.products.Mine(c.UserContext(), me.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "products": products})
}

func (a *API) getProduct(c *fiber.Ctx) error {
	product, err := a.products.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "product": product})
}

func (a *API) addProduct(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	var req marketplace.AddProductRequest
	if err = parseBody(c, &req); err != nil {
		return err
	}
	product, err := a.products.Add(c.UserContext(), me.ID, me.Role, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "message": "Product added successfully", "product": product})
}

func (a *API) updateProduct(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	var req marketplace.UpdateProductRequest
	if err = parseBody(c, &req); err != nil {
		return err
	}
	product, err := a.products.Update(c.UserContext(), me.ID, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Product updated successfully", "product": product})
}

func (a *API) deleteProduct(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	if err = a.products.Delete(c.UserContext(), me.ID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Product deleted successfully"})
}

func (a *API) createOrder(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	var req orders.CreateOrderRequest
	if err = parseBody(c, &req); err != nil {
		return err
	}
	order, err := a.orders.CreateOrder(c.UserContext(), me, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "message": "Order placed successfully", "order": order})
}

func (a *API) buyerOrders(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	list, err := a.orders.BuyerOrders(c.UserContext(), me)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "orders": list})
}

func (a *API) farmerOrders(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	list, err := a.orders.FarmerOrders(c.UserContext(), me)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "orders": list})
}

func (a *API) getOrder(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	order, err := a.orders.Get(c.UserContext(), me, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}

func (a *API) updateOrderStatus(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	if err = parseBody(c, &body); err != nil {
		return err
	}
	order, err := a.orders.UpdateStatus(c.UserContext(), me, c.Params("id"), body.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Order status updated", "order": order})
}

func (a *API) rateOrder(c *fiber.Ctx) error {
	me, err := currentActor(c)
	if err != nil {
		return err
	}
	var body struct {
		Rating int `json:"rating"`
	}
	if err = parseBody(c, &body); err != nil {
		return err
	}
	order, err := a.orders.Rate(c.UserContext(), me, c.Params("id"), body.Rating)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Rating submitted", "order": order})
}
