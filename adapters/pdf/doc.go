// Package mergepdf assembles paginated PDF documents from captured rasters.
//
// The raster is scaled to the page width and sliced into page-height bands;
// every page draws the full raster shifted up by its band offset, so content
// is never stretched and the last page is padded with blank space.
package mergepdf
