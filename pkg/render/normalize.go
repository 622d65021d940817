package render

import (
	"github.com/hanamal24/site-sync/pkg/models"
)

// normalize turns raw datasets into render-ready content. Events are
// filtered by status and linked to their menus and packages; menus are linked
// to their dishes by record id.
func (r *Renderer) normalize(data map[string][]models.Record) *Content {
	c := &Content{}
	imgFields := r.imageFields

	dishes := make(map[string]*Dish)
	for _, rec := range data[models.DatasetDishes] {
		d := &Dish{ID: rec.ID(), Title: str(rec, "Title", "Name", "שם המנה"), Image: firstImage(rec, imgFields)}
		if p, ok := number(rec, "Price", "מחיר"); ok {
			d.Price = r.formatPrice(p)
		}
		dishes[d.ID] = d
	}

	menuSlugs := slugger{}
	menus := make(map[string]*Menu)
	for _, rec := range data[models.DatasetMenus] {
		m := &Menu{ID: rec.ID(), Title: str(rec, "Title", "Name"), Image: firstImage(rec, imgFields)}
		m.Slug = menuSlugs.slug(rec, m.Title)
		m.Summary = str(rec, "SEO_Description", "Description")
		m.Description = r.markdown(str(rec, "Description"))
		for _, id := range ids(rec, "Dishes") {
			if d, ok := dishes[id]; ok {
				m.Dishes = append(m.Dishes, d)
			}
		}
		menus[m.ID] = m
		c.Menus = append(c.Menus, m)
	}

	pkgSlugs := slugger{}
	packages := make(map[string]*Package)
	for _, rec := range data[models.DatasetPackages] {
		p := &Package{ID: rec.ID(), Title: str(rec, "שם חבילה", "Title", "Name"), Image: firstImage(rec, imgFields)}
		p.Slug = pkgSlugs.slug(rec, p.Title)
		if price, ok := number(rec, "מחיר", "Price"); ok {
			p.Price = r.formatPrice(price)
		}
		p.Summary = str(rec, "SEO_Description", "תיאור", "Description")
		p.Description = r.markdown(str(rec, "תיאור", "Description"))
		packages[p.ID] = p
		c.Packages = append(c.Packages, p)
	}

	eventSlugs := slugger{}
	for _, rec := range data[models.DatasetEvents] {
		if !eventVisible(str(rec, "Status")) {
			continue
		}
		e := &Event{ID: rec.ID(), Title: str(rec, "Event Name", "Title", "Name"), Image: firstImage(rec, imgFields)}
		e.Slug = eventSlugs.slug(rec, e.Title)
		e.Start = isoDate(str(rec, "Event Date", "Start", "Date"))
		e.End = isoDate(str(rec, "End", "End Time"))
		if e.End == "" {
			e.End = e.Start
		}
		desc := str(rec, "Description", "Event Summary (AI)")
		e.Description = r.markdown(desc)
		e.Summary = str(rec, "SEO_Description")
		if e.Summary == "" {
			e.Summary = desc
		}
		for _, id := range ids(rec, "Menus") {
			if m, ok := menus[id]; ok {
				e.Menus = append(e.Menus, m)
			}
		}
		for _, id := range ids(rec, "Packages") {
			if p, ok := packages[id]; ok {
				e.Packages = append(e.Packages, p)
			}
		}
		c.Events = append(c.Events, e)
	}
	sortEvents(c.Events)

	for _, rec := range data[models.DatasetGallery] {
		title := str(rec, "Title", "Name", "כותרת")
		for _, img := range allImages(rec, imgFields) {
			c.Gallery = append(c.Gallery, GalleryItem{Title: title, Image: img})
		}
	}

	for _, rec := range data[models.DatasetHero] {
		c.Hero = append(c.Hero, allImages(rec, imgFields)...)
	}

	if about := data[models.DatasetAbout]; len(about) > 0 {
		rec := about[0]
		c.About = &About{
			Title:       str(rec, "Section Title", "Title"),
			Description: r.markdown(str(rec, "Description", "Content")),
			Extra:       r.markdown(str(rec, "Additional_Info")),
			Image:       firstImage(rec, imgFields),
		}
	}
	return c
}
