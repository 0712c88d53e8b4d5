package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"recipecost/models"
)

func importRequest(t *testing.T, filename, delimiter string, lines ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if delimiter != "" {
		if err := form.WriteField("delimiter", delimiter); err != nil {
			t.Fatalf("failed to write delimiter: %v", err)
		}
	}
	if filename != "" {
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write([]byte(strings.Join(lines, "\n"))); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatalf("failed to close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/app/import/ingredients", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func serveImport(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	sessionManager.LoadAndSave(http.HandlerFunc(IngredientImportResource)).ServeHTTP(w, req)
	return w
}

func TestIngredientImportUpdatesCatalogAndRecipes(t *testing.T) {
	db := withTestServices(t)
	kitchen := newTestKitchen(t, db)

	w := serveImport(importRequest(t, "prices.csv", ";",
		"code;name;price;uom",
		"FL-1;Flour;2,40;Kg",
		"SU-1;Sugar;0,90;kg",
		";;1;kg",
	))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 importing, got %d: %s", w.Code, w.Body.String())
	}

	var result ingredientImport
	decodeBody(t, w, &result)
	if result.State != importStateDone {
		t.Fatalf("expected done state, got %q", result.State)
	}
	if result.Created != 1 || result.Updated != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected counts: created=%d updated=%d errors=%d", result.Created, result.Updated, len(result.Errors))
	}
	if result.Errors[0].Row != 4 {
		t.Fatalf("expected the nameless row to fail, got row %d", result.Errors[0].Row)
	}
	if result.Delimiter != ";" || result.FileName != "prices.csv" {
		t.Fatalf("unexpected upload details %+v", result)
	}
	if !strings.HasPrefix(result.Message, "Import completed!\nCreated: 1\nUpdated: 1") {
		t.Fatalf("unexpected message %q", result.Message)
	}

	var pizza models.Recipe
	db.First(&pizza, kitchen.pizza.ID)
	assertDecimal(t, "12.4", pizza.GrandTotal, "pizza grand total after import")
}

func TestIngredientImportKeepsCountsInSession(t *testing.T) {
	withTestServices(t)

	w := serveImport(importRequest(t, "prices.csv", ",", "name,price,uom", "Flour,1.10,kg", "Sugar,0.90,kg", ",1,kg"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 importing, got %d: %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie after import")
	}

	req := httptest.NewRequest(http.MethodGet, "/app/import/ingredients", nil)
	req.AddCookie(cookies[0])
	w = serveImport(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var state ingredientImport
	decodeBody(t, w, &state)
	if state.State != importStateDone || state.FileName != "prices.csv" {
		t.Fatalf("expected the finished import, got %+v", state)
	}
	if state.Created != 2 || state.Updated != 0 || state.ErrorCount != 1 {
		t.Fatalf("unexpected counts: created=%d updated=%d errors=%d", state.Created, state.Updated, state.ErrorCount)
	}
	if !strings.HasPrefix(state.Message, "Import completed!\nCreated: 2\nUpdated: 0") {
		t.Fatalf("unexpected message %q", state.Message)
	}
}

func TestIngredientImportRollsBackWhenRecomputeFails(t *testing.T) {
	db := withTestServices(t)
	kitchen := newTestKitchen(t, db)

	// A loop written behind the API makes the recompute fail.
	loop := models.RecipeLine{
		RecipeID: kitchen.dough.ID, Sequence: 20, Kind: models.LineSubRecipe,
		SubRecipeID: &kitchen.pizza.ID, Quantity: decimal.NewFromInt(1), UnitID: unitID(t, db, "unit"),
	}
	if err := db.Create(&loop).Error; err != nil {
		t.Fatalf("failed to create loop: %v", err)
	}

	w := serveImport(importRequest(t, "prices.csv", ";", "code;name;price;uom", "FL-1;Flour;2,40;Kg", "SU-1;Sugar;0,90;kg"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when recipes cannot be recomputed, got %d: %s", w.Code, w.Body.String())
	}

	var flour models.Ingredient
	if err := db.First(&flour, kitchen.flour.ID).Error; err != nil {
		t.Fatalf("failed to reload flour: %v", err)
	}
	assertDecimal(t, "1.2", flour.Price, "flour price after rollback")

	var sugar int64
	db.Model(&models.Ingredient{}).Where("name = ?", "Sugar").Count(&sugar)
	if sugar != 0 {
		t.Fatalf("expected created ingredients to roll back, found %d", sugar)
	}
}

func TestIngredientImportRendersFragmentForHTMX(t *testing.T) {
	withTestServices(t)

	req := importRequest(t, "prices.csv", ",", "name,price,uom", "Flour,<b>1</b>,kg", "Sugar,0.90,kg")
	req.Header.Set("HX-Request", "true")
	w := serveImport(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 importing, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html fragment, got %q", ct)
	}

	body := w.Body.String()
	for _, token := range []string{`id="import-result"`, `data-state="done"`, `<dd>1</dd>`, "prices.csv"} {
		if !strings.Contains(body, token) {
			t.Fatalf("expected fragment to contain %q, got %s", token, body)
		}
	}
	if strings.Contains(body, "<b>") {
		t.Fatalf("expected row values to be escaped, got %s", body)
	}
}

func TestIngredientImportRequiresFile(t *testing.T) {
	withTestServices(t)

	w := serveImport(importRequest(t, "", ","))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a file, got %d", w.Code)
	}

	w = serveImport(importRequest(t, "prices.csv", ",,", "name", "Flour"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a multi-character delimiter, got %d", w.Code)
	}
}

func TestIngredientImportStartsDraft(t *testing.T) {
	withTestServices(t)

	w := serveImport(httptest.NewRequest(http.MethodGet, "/app/import/ingredients", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var state ingredientImport
	decodeBody(t, w, &state)
	if state.State != importStateDraft || state.Delimiter != "," || state.ID == "" {
		t.Fatalf("unexpected draft %+v", state)
	}
}
