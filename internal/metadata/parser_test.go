package metadata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const metadataPage = `<html><body>
<table class="layout"><tr><td><img src="logo.gif"></td></tr></table>
<table>
  <tr><td>Código:</td><td>432</td></tr>
  <tr><td>Nome:</td><td>Taxa de juros -   Meta Selic definida pelo Copom</td></tr>
  <tr><td>Periodicidade:</td><td>Diária</td></tr>
  <tr><td>Unidade:</td><td>% a.a.</td></tr>
  <tr><td>Fonte:</td><td>Copom</td></tr>
  <tr><td>Comentário:</td><td>   </td></tr>
</table>
</body></html>`

func TestParser_Parse(t *testing.T) {
	t.Parallel()

	md, err := NewParser(Labels{}).Parse([]byte(metadataPage))
	require.NoError(t, err)
	require.NotNil(t, md.Name)
	require.Equal(t, "Taxa de juros - Meta Selic definida pelo Copom", *md.Name)
	require.Equal(t, "Diária", *md.Periodicity)
	require.Equal(t, "% a.a.", *md.Unit)
	require.Equal(t, "Copom", *md.Source)
	require.Nil(t, md.Description)
}

func TestParser_MissingPeriodicityRow(t *testing.T) {
	t.Parallel()

	page := `<table>
  <tr><td>Nome:</td><td>Série sem periodicidade</td></tr>
  <tr><td>Unidade:</td><td>R$</td></tr>
</table>`
	_, err := NewParser(Labels{}).Parse([]byte(page))
	require.True(t, errors.Is(err, ErrTableNotFound))
}

func TestParser_SkipsWideAndOuterTables(t *testing.T) {
	t.Parallel()

	page := `<table><tr><td>
  <table>
    <tr><th>Periodicidade</th><th>Unidade</th><th>Fonte</th></tr>
    <tr><td>Mensal</td><td>%</td><td>IBGE</td></tr>
  </table>
  <table>
    <tr><th>Periodicidade</th><td>Mensal</td></tr>
    <tr><th>Fonte</th><td>IBGE</td></tr>
  </table>
</td><td>sidebar</td></tr></table>`

	md, err := NewParser(Labels{}).Parse([]byte(page))
	require.NoError(t, err)
	require.Equal(t, "Mensal", *md.Periodicity)
	require.Equal(t, "IBGE", *md.Source)
	require.Nil(t, md.Name)
}

func TestParser_CustomLabels(t *testing.T) {
	t.Parallel()

	page := `<table><tr><td>Frequency:</td><td>Monthly</td></tr><tr><td>Title</td><td>CPI</td></tr></table>`
	md, err := NewParser(Labels{Name: "Title", Periodicity: "Frequency"}).Parse([]byte(page))
	require.NoError(t, err)
	require.Equal(t, "Monthly", *md.Periodicity)
	require.Equal(t, "CPI", *md.Name)
}
